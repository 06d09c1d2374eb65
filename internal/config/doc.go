// Package config provides centralized configuration management for the
// sovereignd runtime, covering the API server, the settlement stores, the
// audit job queue and the sovereign vault. Values come from a JSON file with
// typed defaults applied for anything left unset.
package config
