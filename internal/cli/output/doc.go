// Package output renders scrapedelta-cli results as a table, JSON or YAML.
//
// Values that know how to lay themselves out implement Tabular; anything else
// passed to the table formatter is printed as indented JSON.
package output
