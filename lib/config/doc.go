// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for a tierkv
// store.
//
// Configuration is loaded from a single file specified by either the
// TIERKV_CONFIG environment variable (via [Load]) or an explicit path
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// [Default] returns a conservative baseline; the named presets
// ([ConfigForImages], [ConfigForVideos], [ConfigForText],
// [ConfigForEmbedded], [ConfigForCCTV]) return configurations tuned
// for specific workloads. Both the presets and any config loaded from
// a file can be further adjusted with the fluent With* builders before
// being turned into a [tierkv.Config] with [Config.ToTierKVConfig].
//
// Key exports:
//
//   - [Config] -- the on-disk shape of a tierkv configuration file
//   - [Default] -- a conservative baseline configuration
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.ToTierKVConfig] -- resolves the string-keyed YAML fields
//     (algorithm names, decay strategies, reorg triggers) into the
//     typed enums lib/tierkv's Config expects
package config
