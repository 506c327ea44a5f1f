// Package errors provides structured, operator-facing errors for the telegraph
// command line.
//
// Errors carry a stable code, a category, a short message and optional detail,
// source location and fix suggestion. They are rendered for a terminal by
// Format and PrintError, or as one JSON object per error by PrintErrorJSON.
//
// # Error Categories
//
//   - config: telegraph.toml could not be found, parsed or validated
//   - cli: bad flags or arguments
//   - server: listeners or the admin server failed
//   - protocol: wire level failures surfaced to the operator
//
// # Error Codes
//
// Each code (e.g. "T101") maps to a template with a message and detail.
// Configuration errors use T100-T119, CLI errors T120-T139, server errors
// T140-T159 and protocol errors T160-T179.
//
// # Usage
//
//	err := errors.New("T101").
//	    WithLocation("telegraph.toml", 4, 12).
//	    WithSuggestion("Quote string values: listen = \":28015\"")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR T101: Config file could not be parsed
//	//
//	//   telegraph.toml:4:12
//	//
//	//      2 │ [server]
//	//      3 │ # intake
//	//   →  4 │ listen = :28015
//	//        │            ^
//	//      5 │
//	//
//	//   Hint: Quote string values: listen = ":28015"
package errors
