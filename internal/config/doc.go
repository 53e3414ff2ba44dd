// Package config loads, normalizes, and validates StoryForge configuration.
//
// Configuration lives in a TOML file resolved from an explicit path, then
// ~/.config/storyforge/config.toml, then a project-local storyforge.toml.
// Missing files produce a fully defaulted config so read-only commands work
// before 'storyforge config init' has run.
package config
