package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/arrowlog/pkg/config"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// ExampleNewDefaultConfig shows the defaults a configuration starts from.
func ExampleNewDefaultConfig() {
	cfg := config.NewDefaultConfig()

	info, err := cfg.CompressionInfo()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Buffer Size: %d\n", cfg.Writer.BufferSize)
	fmt.Printf("Usage Ratio: %.2f\n", cfg.Writer.UsageRatio)
	fmt.Printf("Codec: %s\n", info)

	// Output:
	// Buffer Size: 1048576
	// Usage Ratio: 0.96
	// Codec: ZSTD(3)
}

// ExampleConfig_RowType builds a row type from the schema section.
func ExampleConfig_RowType() {
	cfg := config.NewDefaultConfig()
	cfg.Schema = []types.FieldDef{
		{Name: "id", Type: "bigint not null"},
		{Name: "digest", Type: "BINARY(16)"},
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	rt, _ := cfg.RowType()
	fmt.Println(rt)

	// Output:
	// ROW<id:BIGINT NOT NULL,digest:BINARY(16)>
}
