package protocol

// JSON Schemas for the observer wire messages, embedded so servers and tests
// validate against the same source.

const HelloSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version"],
  "properties": {
    "type": {"const": "HELLO"},
    "protocol_version": {"type": "string"},
    "client_name": {"type": "string"}
  },
  "additionalProperties": false
}`

const WelcomeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version", "session_id", "generation", "engine"],
  "properties": {
    "type": {"const": "WELCOME"},
    "protocol_version": {"type": "string"},
    "session_id": {"type": "string"},
    "generation": {"type": "integer", "minimum": 0},
    "engine": {
      "type": "object",
      "required": ["dims", "axis_bits", "chunk_edge", "stride", "program"],
      "properties": {
        "dims": {"type": "integer", "enum": [2, 3]},
        "axis_bits": {"type": "integer", "minimum": 1},
        "chunk_edge": {"type": "integer", "minimum": 2},
        "stride": {"type": "integer", "minimum": 1},
        "program": {"type": "string"},
        "tick_rate_hz": {"type": "integer", "minimum": 1}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`

const PublishSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version", "generation", "tick", "active_chunks", "batches"],
  "properties": {
    "type": {"const": "PUBLISH"},
    "protocol_version": {"type": "string"},
    "generation": {"type": "integer", "minimum": 0},
    "tick": {"type": "integer", "minimum": 0},
    "active_chunks": {"type": "integer", "minimum": 0},
    "batches": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false
}`

const ChunkSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version", "key", "generation", "cells"],
  "properties": {
    "type": {"const": "CHUNK"},
    "protocol_version": {"type": "string"},
    "key": {"type": "integer", "minimum": 0},
    "generation": {"type": "integer", "minimum": 0},
    "cells": {"type": "array", "items": {"type": "number"}}
  },
  "additionalProperties": false
}`

const ErrorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version", "code"],
  "properties": {
    "type": {"const": "ERROR"},
    "protocol_version": {"type": "string"},
    "code": {"type": "string", "pattern": "^E_[A-Z_]+$"},
    "message": {"type": "string"}
  },
  "additionalProperties": false
}`
