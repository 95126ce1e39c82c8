package apitest

import (
	"encoding/json"
	"fmt"

	"github.com/helix-tools/etl-go/types"
)

// Default fixture credentials.
const (
	TestUsername = "etl-test"
	TestPassword = "etl-test-password"
	TestToken    = "test-access-token"
)

// MustRecords decodes a JSON array of objects into records. It panics on
// malformed input.
func MustRecords(payload string) []types.Record {
	var records []types.Record
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		panic(fmt.Sprintf("apitest: invalid records payload: %v", err))
	}
	return records
}

// NewFixture returns a fixture with the default credentials and no
// collections.
func NewFixture() Fixture {
	return Fixture{
		Username:    TestUsername,
		Password:    TestPassword,
		Token:       TestToken,
		Collections: map[string][][]types.Record{},
		Failures:    map[string]int{},
	}
}

// NewETLFixture returns a fixture with two apprenticeships, one project page
// per apprenticeship and a two-page programmes collection.
func NewETLFixture() Fixture {
	f := NewFixture()

	f.Collections[ApprenticeshipsPath] = [][]types.Record{
		MustRecords(`[
			{"id": 1, "Learner Name": "Ada Lovelace", "Programme": "Data Fellowship", "End Date": null},
			{"id": 2, "Learner Name": "Grace Hopper", "Programme": "Software Engineering", "Coach": "Linus"}
		]`),
	}

	f.Collections[ProjectsPath("1")] = [][]types.Record{
		MustRecords(`[
			{"id": "p-10", "Title": "Churn model", "Score": 87},
			{"id": "p-11", "Title": "Dashboard"}
		]`),
	}

	f.Collections[ProjectsPath("2")] = [][]types.Record{
		MustRecords(`[
			{"id": "p-20", "Title": "Compiler", "Score": 99.5}
		]`),
	}

	f.Collections[ProgrammesPath] = [][]types.Record{
		MustRecords(`[{"id": "data-fellowship", "Name": "Data Fellowship", "Level": 4}]`),
		MustRecords(`[{"id": "swe", "Name": "Software Engineering", "Level": 4}]`),
	}

	return f
}
