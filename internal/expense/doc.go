// Package expense defines the expense record model and the semantic
// validation applied to tool arguments before any remote call is made:
// amount parsing, ISO 4217 currency codes and the fixed date format.
package expense
