// Package seed loads a static YAML file of Fingerprints, Triggers, and
// Destinations into the Catalog on first boot. The admin REST editor
// spec.md §1 calls out of scope leaves no other way to populate a fresh
// Catalog, so an optional seed file lets the gateway be stood up without
// one (spec.md §9 Domain Stack notes).
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mathiser/inference-server-dicom-node/internal/catalog"
	"github.com/mathiser/inference-server-dicom-node/internal/log"
)

// File is the on-disk shape of a seed file.
type File struct {
	Fingerprints []Fingerprint `yaml:"fingerprints"`
}

// Fingerprint is one seeded Fingerprint with its Triggers and Destinations
// inlined, since the seed file is the only place they are ever expressed
// together as a unit.
type Fingerprint struct {
	HumanReadableID    string        `yaml:"human_readable_id"`
	InferenceServerURL string        `yaml:"inference_server_url"`
	Version            string        `yaml:"version"`
	Description        string        `yaml:"description"`
	DeleteLocally      bool          `yaml:"delete_locally"`
	DeleteRemotely     bool          `yaml:"delete_remotely"`
	Triggers           []Trigger     `yaml:"triggers"`
	Destinations       []Destination `yaml:"destinations"`
}

// Trigger mirrors catalog.Trigger's pattern fields.
type Trigger struct {
	StudyDescriptionPattern  string `yaml:"study_description_pattern"`
	SeriesDescriptionPattern string `yaml:"series_description_pattern"`
	SOPClassUIDExact         string `yaml:"sop_class_uid_exact"`
	ExcludePattern           string `yaml:"exclude_pattern"`
}

// Destination mirrors catalog.Destination.
type Destination struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	AETitle string `yaml:"ae_title"`
}

// Apply parses the YAML file at path and inserts every Fingerprint (with
// its Triggers and Destinations) into store. It is meant to run once
// against a fresh Catalog; re-running it against a populated one creates
// duplicate Fingerprints, since the Catalog has no seed-identity concept
// of its own.
func Apply(ctx context.Context, store *catalog.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: read %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("seed: parse %s: %w", path, err)
	}

	logger := log.WithComponent("seed")
	for _, fp := range file.Fingerprints {
		created, err := store.AddFingerprint(ctx, fp.HumanReadableID, fp.InferenceServerURL, fp.Version, fp.Description, fp.DeleteLocally, fp.DeleteRemotely)
		if err != nil {
			return fmt.Errorf("seed: add fingerprint %s: %w", fp.HumanReadableID, err)
		}

		for _, trig := range fp.Triggers {
			if _, err := store.AddTrigger(ctx, created.ID, trig.StudyDescriptionPattern, trig.SeriesDescriptionPattern, trig.SOPClassUIDExact, trig.ExcludePattern); err != nil {
				return fmt.Errorf("seed: add trigger for %s: %w", fp.HumanReadableID, err)
			}
		}

		for _, dest := range fp.Destinations {
			if _, err := store.AddDestination(ctx, dest.Host, dest.Port, dest.AETitle, created.ID); err != nil {
				return fmt.Errorf("seed: add destination for %s: %w", fp.HumanReadableID, err)
			}
		}

		logger.Info().Str("human_readable_id", fp.HumanReadableID).Int("triggers", len(fp.Triggers)).Int("destinations", len(fp.Destinations)).Msg("seeded fingerprint")
	}

	return nil
}
