// Package sender implements the DICOM Sender (spec.md §4.5): it walks an
// unpacked output archive directory and C-STOREs every instance to one
// Destination, best-effort per file.
package sender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caio-sobreiro/dicomnet/client"
	"github.com/caio-sobreiro/dicomnet/dicom"
	"github.com/caio-sobreiro/dicomnet/types"

	"github.com/mathiser/inference-server-dicom-node/internal/log"
	"github.com/mathiser/inference-server-dicom-node/internal/telemetry"
)

// callingAETitle identifies this gateway to downstream peers. It is not
// configurable per-Destination in spec.md §3 (Destination only carries
// host/port/ae_title for the remote side), so a fixed value is used.
const callingAETitle = "GATEWAY"

const maxPDULength = 16384

// Send associates to (host, port, aeTitle), walks dir recursively, and
// C-STOREs every file found. Returns true only if the association was
// established; individual C-STORE failures are logged but never flip the
// return value (spec.md §4.5's best-effort-per-file contract).
func Send(ctx context.Context, host string, port int, aeTitle string, dir string) (bool, error) {
	tracer := telemetry.Tracer("gateway.sender")
	ctx, span := tracer.Start(ctx, "sender.send")
	defer span.End()

	logger := log.WithComponentFromContext(ctx, "sender").With().
		Str(log.FieldDestinationHost, host).
		Int(log.FieldDestinationPort, port).
		Str(log.FieldAETitle, aeTitle).
		Logger()

	files, err := collectFiles(dir)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("sender: collect files in %s: %w", dir, err)
	}

	cfg := client.Config{
		CallingAETitle:            callingAETitle,
		CalledAETitle:             aeTitle,
		MaxPDULength:              maxPDULength,
		PreferredTransferSyntaxes: []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian},
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	assoc, err := client.Connect(addr, cfg)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("failed to establish association")
		return false, fmt.Errorf("sender: connect to %s: %w", addr, err)
	}
	defer assoc.Close()

	var messageID uint16 = 1
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := sendOne(assoc, path, messageID); err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("C-STORE failed for instance, continuing")
		}
		messageID++
	}

	return true, nil
}

func sendOne(assoc *client.Association, path string, messageID uint16) error {
	dataset, _, data, err := dicom.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	sopClassUID := dataset.GetString(dicom.Tag{Group: 0x0008, Element: 0x0016})
	sopInstanceUID := dataset.GetString(dicom.Tag{Group: 0x0008, Element: 0x0018})

	resp, err := assoc.SendCStore(&client.CStoreRequest{
		SOPClassUID:    sopClassUID,
		SOPInstanceUID: sopInstanceUID,
		Data:           data,
		MessageID:      messageID,
	})
	if err != nil {
		return fmt.Errorf("send c-store for %s: %w", sopInstanceUID, err)
	}
	if resp.Status != 0x0000 {
		return fmt.Errorf("c-store for %s returned status 0x%04X", sopInstanceUID, resp.Status)
	}
	return nil
}

func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
