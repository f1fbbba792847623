// Package providers implements the capabilities the router dispatches to:
// arithmetic, code generation, OS actions, browser navigation, SQL, mail,
// headlines and document extraction.
//
// Every provider returns plain errors; the router turns them into labelled
// response strings.
package providers
