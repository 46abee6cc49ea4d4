// Package configs provides embedded configuration templates for repovec.
//
// Templates are embedded at build time with //go:embed so they ship in
// every distribution. They are used by:
//   - cmd/repovec/cmd/init.go  -> creates .repovec.yaml in the project root
//   - cmd/repovec/cmd/config.go -> creates ~/.config/repovec/config.yaml
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Contains machine-specific settings such as service endpoints.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Contains project-specific settings (paths, quota, search weights) meant
// to be version-controlled with the project.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
