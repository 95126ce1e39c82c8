package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/helix-tools/etl-go/api"
	"github.com/helix-tools/etl-go/api/apitest"
	"github.com/helix-tools/etl-go/config"
	"github.com/helix-tools/etl-go/consumer"
	"github.com/helix-tools/etl-go/pipeline"
	"github.com/helix-tools/etl-go/producer"
)

// Row counts served by apitest.NewETLFixture.
var expectedRows = map[string]int{
	"apprenticeships.csv": 2,
	"projects_1.csv":      2,
	"projects_2.csv":      1,
	"programmes.csv":      2,
}

func main() {
	fmt.Println("================================================================================")
	fmt.Println("  ETL END-TO-END TEST")
	fmt.Println("  Fake API → Pipeline → S3 → Consumer Download")
	fmt.Println("================================================================================")
	fmt.Println("")

	ctx := context.Background()

	// Step 1: Start the fake API
	fmt.Println("Step 1: Start Fake API")
	fmt.Println("--------------------------------------------------------------------------------")
	server := apitest.NewServer(apitest.NewETLFixture())
	defer server.Close()
	fmt.Printf("✅ Fake API listening on %s\n\n", server.URL)

	// Step 2: Load storage configuration. Bucket and credentials come from
	// ETL_STORAGE_* variables or etl.json5; the API always points at the fake.
	fmt.Println("Step 2: Load Configuration")
	fmt.Println("--------------------------------------------------------------------------------")
	cfg, err := config.Load(os.Getenv("ETL_CONFIG"))
	if err != nil {
		fail("Failed to load config", err)
	}

	runID := pipeline.NewRunID()
	cfg.API = config.APIConfig{
		BaseURL:  server.URL,
		Username: apitest.TestUsername,
		Password: apitest.TestPassword,
		Timeout:  "10s",
	}
	cfg.API.LoginURL = server.URLFor(apitest.LoginPath)
	cfg.API.ApprenticeshipsURL = server.URLFor(apitest.ApprenticeshipsPath)
	cfg.API.ProjectsURL = server.URLFor(apitest.ProjectsTemplate)
	cfg.API.ProgrammesURL = server.URLFor(apitest.ProgrammesPath)
	cfg.Storage.KeyPrefix = fmt.Sprintf("%se2e/%s/", cfg.Storage.KeyPrefix, runID)
	cfg.AbortOnMissingCredentials = true

	if err := cfg.Validate(); err != nil {
		fail("Invalid config", err)
	}
	fmt.Printf("✅ Configuration loaded\n")
	fmt.Printf("   Bucket: %s\n", cfg.Storage.Bucket)
	fmt.Printf("   Key Prefix: %s\n", cfg.Storage.KeyPrefix)
	fmt.Printf("   Run ID: %s\n\n", runID)

	// Step 3: Run the pipeline
	fmt.Println("Step 3: Run Pipeline")
	fmt.Println("--------------------------------------------------------------------------------")
	prod, err := producer.New(ctx, producer.Config{
		Storage: cfg.Storage,
		RunID:   runID,
		Out:     os.Stdout,
	})
	if err != nil {
		fail("Failed to initialize producer", err)
	}

	timeout, err := cfg.API.TimeoutDuration()
	if err != nil {
		fail("Invalid timeout", err)
	}
	client := api.NewClient(api.ClientOptions{Timeout: timeout})

	stats, err := pipeline.New(client, prod, pipeline.OptionsFromConfig(cfg, runID)).Run(ctx)
	if err != nil {
		fail("Pipeline failed", err)
	}
	fmt.Printf("✅ %s\n\n", stats.Describe())

	// Step 4: Download every object
	fmt.Println("Step 4: Download Objects (Consumer)")
	fmt.Println("--------------------------------------------------------------------------------")
	cons, err := consumer.New(ctx, consumer.Config{Storage: cfg.Storage})
	if err != nil {
		fail("Failed to initialize consumer", err)
	}

	for _, key := range stats.Uploaded {
		table, err := cons.DownloadTable(ctx, key)
		if err != nil {
			fail("Failed to download "+key, err)
		}
		if want := expectedRows[key]; table.Len() != want {
			fail("Unexpected row count for "+key, fmt.Errorf("got %d, want %d", table.Len(), want))
		}
		fmt.Printf("✅ %s: %d rows, columns %v\n", key, table.Len(), table.Columns)
	}
	if len(stats.Uploaded) != len(expectedRows) {
		fail("Unexpected upload count", fmt.Errorf("got %d, want %d", len(stats.Uploaded), len(expectedRows)))
	}
	fmt.Println("")

	// Step 5: Check notifications, when a queue is configured
	if cfg.Storage.NotifyQueueURL != "" {
		fmt.Println("Step 5: Read Upload Notifications")
		fmt.Println("--------------------------------------------------------------------------------")

		seen := 0
		deadline := time.Now().Add(30 * time.Second)
		for seen < len(stats.Uploaded) && time.Now().Before(deadline) {
			notifications, err := cons.PollNotifications(ctx, consumer.PollNotificationsOptions{
				WaitTimeSeconds: 5,
				RunIDs:          []string{runID},
			})
			if err != nil {
				fail("Failed to poll notifications", err)
			}
			for _, n := range notifications {
				fmt.Printf("📥 %s (%d rows)\n", n.Key, n.RowCount)
			}
			seen += len(notifications)
		}
		if seen < len(stats.Uploaded) {
			fail("Missing notifications", fmt.Errorf("got %d, want %d", seen, len(stats.Uploaded)))
		}
		fmt.Println("")
	}

	fmt.Println("================================================================================")
	fmt.Println("  ✅ ETL END-TO-END TEST COMPLETE!")
	fmt.Println("================================================================================")
	fmt.Printf("Objects written under s3://%s/%s\n", cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
}

func fail(msg string, err error) {
	fmt.Printf("❌ %s: %v\n", msg, err)
	os.Exit(1)
}
