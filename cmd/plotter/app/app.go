package app

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-telemetry/internal/storage"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return plotSession(ctx, store, config, logger)
}

func plotSession(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) error {
	session, err := store.Session(ctx, config.SessionID)
	if err != nil {
		return err
	}

	protocol, err := telemetry.ParseProtocol(session.Protocol)
	if err != nil {
		return fmt.Errorf("session %d: %w", session.ID, err)
	}

	opts := []storage.ReaderOption{storage.WithProtocol(protocol)}
	var filters []any
	if config.FromMillis != nil || config.ToMillis != nil {
		from, to := int64(math.MinInt64), int64(math.MaxInt64)
		if config.FromMillis != nil {
			from = *config.FromMillis
			filters = append(filters, slog.Int64("fromMillis", from))
		}
		if config.ToMillis != nil {
			to = *config.ToMillis
			filters = append(filters, slog.Int64("toMillis", to))
		}
		opts = append(opts, storage.WithMillisRange(from, to))
	}

	logger.Info("reader configuration", append(filters,
		slog.Int64("session", session.ID),
		slog.String("protocol", protocol.String()))...)

	reader, err := store.ReadRecords(ctx, session.ID, opts...)
	if err != nil {
		return err
	}
	defer reader.Close()

	data := NewTraceData(protocol)
	for reader.Next(ctx) {
		data.Update(reader.Current())
	}
	if err = reader.Error(); err != nil {
		return err
	}

	records, corrupt, err := store.Counts(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("counting frames: %w", err)
	}

	logger.Info("finished reading records",
		slog.Group("stats",
			slog.String("plotted", humanize.Comma(int64(data.Count))),
			slog.String("stored", humanize.Comma(records)),
			slog.String("corrupt", humanize.Comma(corrupt)),
			slog.String("start", formatMillis(data.MillisStart)),
			slog.String("end", formatMillis(data.MillisEnd)),
		))

	renderer := NewChartRenderer(RenderConfig{
		Width:         config.Width,
		PanelHeight:   config.PanelHeight,
		NoAnnotations: config.NoAnnotations,
	})

	logger.Info("rendering traces",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
			slog.Int("panelHeight", config.PanelHeight),
			slog.Int("panels", len(data.Panels)),
		))

	img, err := renderer.Render(data, SessionInfo{
		ID:      session.ID,
		Source:  session.Source,
		Records: records,
		Corrupt: corrupt,
	})
	if err != nil {
		return fmt.Errorf("rendering traces: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	if err = encodeImage(out, img, config.Format); err != nil {
		return fmt.Errorf("encoding %s: %w", config.Format, err)
	}
	return out.Close()
}

func encodeImage(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{
			Quality: 98,
		})
	default:
		return fmt.Errorf("unsupported image format: %s", format)
	}
}
