/*
Package config loads and validates the triage-collector's YAML artifact
list: the model the (out-of-scope) CLI front-end produces and the
artifact scheduler (internal/collect) consumes.

# Configuration Shape

A configuration has a version, a free-form description, a free-form
global_options map passed through from the CLI, and an ordered list of
artifacts:

	version: "1.0"
	description: "workstation triage profile"
	global_options:
	  case_id: "case-2026-0147"
	artifacts:
	  - name: "MFT"
	    artifact_type: { Windows: MFT }
	    source_path: "\\\\?\\C:\\$MFT"
	    destination_name: "MFT"
	    required: true
	  - name: "SysLogs"
	    artifact_type: { Linux: SysLogs }
	    source_path: "/var/log"
	    required: false
	    regex:
	      enabled: true
	      recursive: true
	      include_pattern: ".*\\.log$"
	      max_depth: 5

# Artifact Types

ArtifactType models the collector's tagged-variant artifact
classification: Generic (FileSystem, Logs, UserData, SystemInfo,
Memory, Network),
Windows (MFT, Registry, EventLog, Prefetch, USNJournal, ShimCache,
AmCache), Linux (SysLogs, Journal, Proc, Audit, Cron, Bash, Apt, Dpkg,
Yum, Systemd), MacOS (UnifiedLogs, Plist, Spotlight, FSEvents,
Quarantine, KnowledgeC, LaunchAgents, LaunchDaemons), VolatileData
(SystemInfo, Processes, NetworkConnections, Memory, Disks), and Custom.

Generic variants and Custom serialize as a bare YAML string; every
other category serializes as a single-key map. ArtifactType implements
yaml.Marshaler/Unmarshaler to accept and produce both forms.

# Loading and Validation

	cfg, err := config.LoadFromFile("triage.yaml")
	if err != nil {
		log.Fatal(err)
	}

LoadFromFile parses the YAML and calls Validate, which checks:

  - version is non-empty
  - artifact names are unique within the config
  - artifact_type names a recognized category/variant pair
  - source_path is non-empty
  - when a regex block is present (enabled or not), include_pattern and
    exclude_pattern (if set) compile as regular expressions, and
    max_depth (if set) is non-negative

Validate also fills in the default include_pattern (".*") when a regex
block is present but leaves the pattern empty, matching C3's stated
default.

# Platform Filtering

ForPlatform(goos) returns the artifacts applicable to one target OS:
Generic, Custom, and VolatileData artifacts are supported everywhere;
Windows/Linux/MacOS-tagged artifacts are filtered to their matching
GOOS, mirroring the scheduler's platform predicate.

# Round-Tripping

Configuration, Artifact, RegexConfig, and ArtifactType all marshal back
to YAML that unmarshals to a value equal to the one loaded, so a loaded
config can be re-saved via SaveToFile without loss. The bytes are not
preserved: flow-style maps come back in block style and empty optional
fields are omitted. This is useful for config migration and the `init-config`
front-end this package backs.
*/
package config
