package credentials

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/toolerr"
)

// Broker performs scoped credential acquisition: material is fetched,
// written to a single-use artifact, and destroyed on every exit path.
type Broker struct {
	source     Source
	scratchDir string
	log        zerolog.Logger
}

// NewBroker creates a broker writing artifacts under scratchDir.
func NewBroker(source Source, scratchDir string, logger zerolog.Logger) (*Broker, error) {
	if source == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	if scratchDir == "" {
		return nil, fmt.Errorf("credential scratch directory is required")
	}
	if err := os.MkdirAll(scratchDir, 0700); err != nil {
		return nil, fmt.Errorf("creating credential scratch dir: %w", err)
	}
	return &Broker{source: source, scratchDir: scratchDir, log: logger}, nil
}

// WithCredentials fetches material for (userID, provider), writes it to an
// owner-only artifact, and invokes fn with the artifact path. The artifact
// is overwritten and removed before WithCredentials returns, whether fn
// succeeds, fails, or the context is canceled.
//
// The artifact path is the only thing handed out; key values are never
// placed in any process environment.
func (b *Broker) WithCredentials(ctx context.Context, userID, provider string, fn func(artifactPath string) error) error {
	if !ValidProvider(provider) {
		return toolerr.New(toolerr.KindInvalidParameters, "unknown provider %q", provider)
	}

	material, err := b.source.Fetch(ctx, userID, provider)
	if err != nil {
		if _, ok := toolerr.KindOf(err); ok {
			return err
		}
		return toolerr.New(toolerr.KindCredentialUnavailable, "fetching credentials: store unavailable")
	}

	path, err := b.writeArtifact(material)
	if err != nil {
		return fmt.Errorf("writing credential artifact: %w", err)
	}
	defer func() {
		if derr := shredFile(path); derr != nil {
			b.log.Error().Str("artifact", path).Err(derr).Msg("credential artifact cleanup failed")
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(path)
}

// writeArtifact renders material in shared-credentials INI form and
// returns the artifact path. The file is created 0600 in the scratch dir.
func (b *Broker) writeArtifact(m *Material) (string, error) {
	f, err := os.CreateTemp(b.scratchDir, "creds-*.ini")
	if err != nil {
		return "", err
	}
	path := f.Name()

	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}

	if _, err := f.WriteString(renderArtifact(m)); err != nil {
		f.Close()
		_ = shredFile(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = shredFile(path)
		return "", err
	}
	return path, nil
}

func renderArtifact(m *Material) string {
	keys := make([]string, 0, len(m.Keys))
	for k := range m.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("[default]\n")
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(" = ")
		sb.WriteString(m.Keys[k])
		sb.WriteString("\n")
	}
	if m.Region != "" {
		sb.WriteString("region = ")
		sb.WriteString(m.Region)
		sb.WriteString("\n")
	}
	return sb.String()
}

// shredFile overwrites the file's bytes with zeros before removing it.
func shredFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0600)
	if err == nil {
		zeros := make([]byte, info.Size())
		_, werr := f.WriteAt(zeros, 0)
		serr := f.Sync()
		cerr := f.Close()
		if werr != nil || serr != nil || cerr != nil {
			// Fall through to removal regardless; the artifact must not
			// outlive the invocation.
			_ = os.Remove(path)
			if werr != nil {
				return werr
			}
			if serr != nil {
				return serr
			}
			return cerr
		}
	}

	return os.Remove(path)
}
