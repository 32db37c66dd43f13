package transcribe

import (
	"io"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/destination"
	"github.com/TechnicallyShaun/nota-memos/internal/destination/gdocs"
	"github.com/TechnicallyShaun/nota-memos/internal/destination/obsidian"
	"github.com/m-mizutani/goerr/v2"
)

// NewDestination builds the destination selected by cfg.Destination.Type.
// out receives each destination's cleanup summary.
func NewDestination(cfg *config.Config, out io.Writer) (destination.Destination, error) {
	switch destination.Kind(cfg.Destination.Type) {
	case destination.KindGoogleDocs:
		s, err := gdocs.New(cfg.Destination.GoogleDocs, cfg.DataDir, gdocs.WithOutput(out))
		if err != nil {
			return nil, err
		}
		return s, nil
	case destination.KindObsidian:
		s, err := obsidian.New(cfg.Destination.Obsidian, obsidian.WithOutput(out))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, goerr.Wrap(destination.ErrUnknownKind, "cannot build destination",
			goerr.V("type", cfg.Destination.Type))
	}
}
