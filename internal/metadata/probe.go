package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"
)

// probeResult mirrors the JSON emitted by exiftool for the fields we ask
// for. Subject is emitted as either a string or an array depending on how
// many values the file carries.
type probeResult struct {
	Subject     probeStringList `json:"Subject"`
	Description string          `json:"Description"`
	XPSubject   string          `json:"XPSubject"`
}

type probeStringList []string

func (list *probeStringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*list = probeStringList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}

	*list = many
	return nil
}

// probeFile shells out to the configured exiftool-compatible binary as a
// last resort. Probe failures are logged and swallowed; the import must
// never stall on a missing or broken helper binary.
func (extractor *Extractor) probeFile(path string) ExtractedMetadata {
	var meta ExtractedMetadata
	if extractor.config.ProbeBinPath == "" {
		return meta
	}

	timeout := time.Duration(extractor.config.ProbeTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, extractor.config.ProbeBinPath, "-j", "-Subject", "-Description", "-XPSubject", path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		log.Debugf("external metadata probe of %s failed: %v\n", path, err)
		return meta
	}

	var results []probeResult
	if err := json.Unmarshal(stdout.Bytes(), &results); err != nil || len(results) == 0 {
		log.Debugf("external metadata probe of %s produced unparseable output\n", path)
		return meta
	}

	result := results[0]
	if len(result.Subject) > 0 {
		meta.Subject = strings.Join(result.Subject, ", ")
	} else if result.XPSubject != "" {
		meta.Subject = result.XPSubject
	}
	meta.Description = result.Description

	return meta
}
