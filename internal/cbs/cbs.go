// Package cbs imports the Central Bureau of Statistics accident files:
// discovering batch directories, parsing the windows-1255 CSVs, mapping rows
// to markers, involved persons and vehicles, and bulk loading them.
package cbs

// Provider codes of CBS files. A batch's provider is the CBS file type.
const (
	ProviderUrban    = 1
	ProviderNonUrban = 3
)

// CBSProviders are the provider codes owned by this importer.
var CBSProviders = []int{ProviderUrban, ProviderNonUrban}

// MissingCode replaces absent coded values.
const MissingCode = -1

// DictionaryStartYear is the first year whose Dictionary.csv is loaded.
const DictionaryStartYear = 2008
