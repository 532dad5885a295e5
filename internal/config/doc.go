// Package config provides loading and environment overlay for the
// projection driver's configuration tree. It exposes a Default() baseline
// plus helpers to load a JSON override file and overlay PROJ_* environment
// variables on top.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/sliceoffset.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
