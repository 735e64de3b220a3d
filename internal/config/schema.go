package config

// definitionSchema is the JSON schema for credkeeper.yaml. Policy value
// ranges are checked separately by policy validation; the schema guards
// structure and types.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "policies"],
  "properties": {
    "version": {"type": "integer", "enum": [1]},
    "data_dir": {"type": "string"},
    "store": {
      "type": "object",
      "properties": {
        "backend": {"type": "string", "enum": ["", "envfile", "keyring", "redis"]},
        "path": {"type": "string"},
        "service": {"type": "string"},
        "url": {"type": "string"},
        "prefix": {"type": "string"}
      },
      "additionalProperties": false
    },
    "breach": {
      "type": "object",
      "properties": {
        "endpoint": {"type": "string"},
        "timeout_ms": {"type": "integer", "minimum": 0},
        "disabled": {"type": "boolean"}
      },
      "additionalProperties": false
    },
    "policies": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type_id", "rotation_interval_days", "warning_days", "min_length", "complexity_class"],
        "properties": {
          "type_id": {"type": "string", "minLength": 1},
          "rotation_interval_days": {"type": "integer", "minimum": 1},
          "warning_days": {"type": "integer", "minimum": 1},
          "min_length": {"type": "integer", "minimum": 1},
          "complexity_class": {"type": "string", "enum": ["none", "medium", "high", "very_high"]},
          "requires_second_factor": {"type": "boolean"},
          "crucial": {"type": "boolean"},
          "min_score": {"type": "integer", "minimum": 0, "maximum": 100},
          "password_like": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`
