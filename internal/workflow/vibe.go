package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"tripplanner/internal/llm"
	"tripplanner/internal/model"
)

// VibeChecker produces the short "what is this place like" blurb shown on a candidate.
type VibeChecker interface {
	Check(ctx context.Context, p model.Place) (model.VibeCheck, error)
}

// NoVibe is attached when no checker is configured or a check fails.
func NoVibe() model.VibeCheck {
	return model.VibeCheck{Summary: "No vibe check", Tags: []string{}}
}

// HeuristicVibe derives a vibe from rating and review counts alone.
type HeuristicVibe struct{}

func (HeuristicVibe) Check(_ context.Context, p model.Place) (model.VibeCheck, error) {
	v := model.VibeCheck{Tags: []string{}}
	switch {
	case p.Reviews >= 20000 && p.Rating < 4.2:
		v.IsTouristTrap = true
		v.Tags = append(v.Tags, "crowded")
		v.Summary = "Very busy and rated below its fame."
	case p.Reviews < 500 && p.Rating >= 4.3:
		v.Tags = append(v.Tags, "hidden gem")
		v.Summary = "Small, well loved spot."
	case p.Rating >= 4.5:
		v.Tags = append(v.Tags, "highly rated")
		v.Summary = "Consistently excellent reviews."
	default:
		v.Summary = "A solid local pick."
	}
	if p.Reviews > 5000 {
		v.Tags = append(v.Tags, "popular")
	}
	if p.Category != "" {
		v.Tags = append(v.Tags, strings.ReplaceAll(p.Category, "_", " "))
	}
	return v, nil
}

// LLMVibe asks the text model for a vibe check and falls back to Fallback
// when the model is unavailable or answers with something unusable.
type LLMVibe struct {
	Client   llm.Client
	Fallback VibeChecker
}

type rawVibe struct {
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	IsTouristTrap bool     `json:"isTouristTrap"`
}

const vibeSystemPrompt = `You describe places for travellers. Reply with JSON only: {"summary": string, "tags": [string], "isTouristTrap": bool}. Keep the summary under 20 words.`

func (v LLMVibe) Check(ctx context.Context, p model.Place) (model.VibeCheck, error) {
	fallback := v.Fallback
	if fallback == nil {
		fallback = HeuristicVibe{}
	}
	if v.Client == nil {
		return fallback.Check(ctx, p)
	}
	resp, err := v.Client.Generate(ctx, llm.GenerateRequest{
		Task:         llm.TaskVibe,
		SystemPrompt: vibeSystemPrompt,
		Prompt:       fmt.Sprintf("Place: %s (%s), rated %.1f from %d reviews. %s", p.Name, p.Category, p.Rating, p.Reviews, p.Description),
	})
	if err == nil {
		var raw rawVibe
		raw, err = llm.Decode[rawVibe](resp.Text, func(r rawVibe) error {
			if strings.TrimSpace(r.Summary) == "" {
				return errors.New("empty summary")
			}
			return nil
		})
		if err == nil {
			out := model.VibeCheck{Summary: strings.TrimSpace(raw.Summary), Tags: []string{}, IsTouristTrap: raw.IsTouristTrap}
			for _, t := range raw.Tags {
				if t = strings.TrimSpace(t); t != "" {
					out.Tags = append(out.Tags, t)
				}
			}
			return out, nil
		}
	}
	log.Printf("[workflow] vibe check for %s fell back: %v", p.ID, err)
	return fallback.Check(ctx, p)
}
