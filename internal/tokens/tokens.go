// Package tokens bounds evidence text to the model's context budget.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/vulnverified/nophish/internal/logger"
)

// DefaultEncoding is the BPE encoding used to count tokens.
const DefaultEncoding = "cl100k_base"

// DefaultCeiling is the maximum number of evidence tokens sent to the model.
const DefaultCeiling = 7500

// Encoder converts between text and token IDs.
type Encoder interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

var loaderOnce sync.Once

type tiktokenEncoder struct {
	tk *tiktoken.Tiktoken
}

// NewTiktokenEncoder returns the named encoding, loaded from BPE ranks
// embedded in the binary.
func NewTiktokenEncoder(name string) (Encoder, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	tk, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", name, err)
	}
	return &tiktokenEncoder{tk: tk}, nil
}

// Encode treats special-token text as ordinary text.
func (e *tiktokenEncoder) Encode(text string) []int {
	return e.tk.Encode(text, nil, nil)
}

func (e *tiktokenEncoder) Decode(tokens []int) string {
	return e.tk.Decode(tokens)
}

// Guard implements engine.TokenGuard.
type Guard struct {
	enc     Encoder
	ceiling int
	log     logger.Logger
}

// NewGuard returns a Guard. A non-positive ceiling selects DefaultCeiling.
func NewGuard(enc Encoder, ceiling int, log logger.Logger) *Guard {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Guard{enc: enc, ceiling: ceiling, log: log}
}

// Ceiling returns the configured token ceiling.
func (g *Guard) Ceiling() int { return g.ceiling }

// Truncate returns text unchanged when it fits the ceiling. Otherwise it keeps
// the longest token prefix whose decoded text re-encodes within the ceiling.
// The cut may fall inside a JSON structure.
func (g *Guard) Truncate(text string) (string, int, bool) {
	toks := g.enc.Encode(text)
	g.log.Info("Evidence token count",
		logger.Int("tokens", len(toks)),
		logger.Int("ceiling", g.ceiling),
	)
	if len(toks) <= g.ceiling {
		return text, len(toks), false
	}

	keep := g.ceiling
	for keep > 0 {
		out := g.enc.Decode(toks[:keep])
		n := len(g.enc.Encode(out))
		if n <= g.ceiling {
			g.log.Debug("Evidence truncated",
				logger.Int("from_tokens", len(toks)),
				logger.Int("to_tokens", n),
			)
			return out, n, true
		}
		keep -= n - g.ceiling
	}
	return "", 0, true
}
