// Package config loads the configuration of an arrowlog setup: the table a
// log belongs to, writer sizing and codec, pool and page sizes, segment
// compression and observability switches, plus the row schema.
//
// # Loading
//
// Plain YAML, with ${VAR_NAME} substituted from the environment:
//
//	cfg, err := config.LoadConfig("arrowlog.yaml")
//
// Through viper, where every key can also come from the environment:
//
//	cfg, err := config.LoadWithViper("arrowlog.yaml", "ARROWLOG")
//	// ARROWLOG_WRITER_BUFFER_SIZE=65536 overrides writer.buffer_size
//
// # File layout
//
//	name: clicks
//	table:
//	  id: 7
//	  schema_id: 1
//	writer:
//	  buffer_size: 1048576
//	  usage_ratio: 0.96
//	  compression:
//	    type: zstd
//	    level: 3
//	segment:
//	  compression: s2
//	schema:
//	  - name: id
//	    type: BIGINT NOT NULL
//	  - name: url
//	    type: STRING
//
// Keys left out keep the values of NewDefaultConfig.
package config
