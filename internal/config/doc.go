// Package config loads telegraph.toml.
//
// Every key is optional. Keys missing from the file keep the defaults returned
// by New, and unknown keys are rejected so typos surface at startup.
//
// # Configuration File Structure
//
//	[server]
//	listen = ":28015"
//	handshake_timeout = "10s"
//	read_timeout = "0s"
//	write_timeout = "10s"
//	max_message_size = 1048576
//	strict_control_frames = false
//	handler_errors = "log"        # or "close"
//	allowed_origins = ["app.example.com"]
//
//	[admin]
//	enabled = true
//	listen = ":9090"
//	ws_path = "/ws"
//
//	[metrics]
//	enabled = true
//	namespace = "telegraph"
//
//	[tracing]
//	enabled = true
//	tracer_name = "telegraph"
//
//	[log]
//	level = "info"                # debug, info, warn, error
//	format = "text"               # or "json"
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srvCfg, err := cfg.ServerConfig()
package config
