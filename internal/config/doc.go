// Package config resolves the modelpack pipeline configuration from
// built-in defaults, an optional modelpack.json (JSONC) file in the build
// context, and MODELPACK_* environment variables (optionally sourced from
// a .env file).
//
// The defaults describe the complete packaging recipe — a Python base
// image serving a GPT4All model binary on port 8000 — so a build context
// with no configuration file at all is fully buildable.
package config
