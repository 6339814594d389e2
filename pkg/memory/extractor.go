// Package memory implements loom's narrative memory pipeline: extracting
// durable story facts from finished chapters, mirroring them into a
// project-scoped vector collection, retrieving them semantically at
// generation time, and tracking the foreshadow payoff lifecycle.
//
// Extraction and retrieval are best-effort side channels of chapter
// generation. Model or vector failures degrade the pipeline (empty
// extraction, relational fallback) rather than failing the chapter.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/llm"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

// maxExtractionChars bounds the chapter text sent to the model so long
// chapters do not blow up token budgets.
const maxExtractionChars = 3000

const extractionSystemPrompt = `You are a story analyst. Extract the durable narrative facts from the chapter text you are given.

Respond with JSON only, in this shape:
{"memories": [{"type": "plot_point", "title": "...", "content": "...", "importance": 0.8, "is_foreshadow": false, "characters": ["..."], "locations": ["..."]}]}

Rules:
- type is one of: plot_point, hook, foreshadow, character_event, location_event
- title is a short label; content is one or two sentences describing the fact
- importance is between 0.0 and 1.0
- is_foreshadow is true only for setups that demand a later payoff
- characters and locations are names exactly as they appear in the text
- extract only facts that will matter in later chapters`

// Extractor turns chapter prose into structured memory records with one
// model call.
type Extractor struct {
	store  storage.Store
	client llm.Client
	logger *zap.Logger
}

// NewExtractor creates a memory extractor.
func NewExtractor(store storage.Store, client llm.Client, logger *zap.Logger) *Extractor {
	return &Extractor{
		store:  store,
		client: client,
		logger: logger,
	}
}

// extractedMemory is the model's wire shape for one fact. Character and
// location references are names; the model cannot know internal ids.
type extractedMemory struct {
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Importance   float64  `json:"importance"`
	IsForeshadow bool     `json:"is_foreshadow"`
	Characters   []string `json:"characters"`
	Locations    []string `json:"locations"`
}

type extractionResponse struct {
	Memories []extractedMemory `json:"memories"`
}

// Extract prompts the model for the chapter's durable facts and returns
// them as memory records with ids, timeline, and resolved character
// references filled in. Any model or parse failure yields an empty slice
// and a warn log; extraction never fails the caller.
func (e *Extractor) Extract(ctx context.Context, project *novel.Project, chapterID string, chapterNumber int, text string) []*novel.Memory {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) > maxExtractionChars {
		text = string(runes[:maxExtractionChars])
	}

	raw, err := e.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		e.logger.Warn("memory extraction model call failed",
			zap.String("chapter_id", chapterID),
			zap.Error(err))
		return nil
	}

	parsed, err := parseExtractionResponse(raw)
	if err != nil {
		e.logger.Warn("memory extraction response unparseable",
			zap.String("chapter_id", chapterID),
			zap.Error(err))
		return nil
	}

	memories := make([]*novel.Memory, 0, len(parsed.Memories))
	now := time.Now().UTC()

	for _, item := range parsed.Memories {
		memType := novel.MemoryType(item.Type)
		if !memType.Valid() {
			e.logger.Warn("dropping memory with unknown type",
				zap.String("chapter_id", chapterID),
				zap.String("type", item.Type))
			continue
		}

		foreshadow := novel.ForeshadowNone
		if item.IsForeshadow {
			foreshadow = novel.ForeshadowPlanted
		}

		memories = append(memories, &novel.Memory{
			ID:                uuid.NewString(),
			ProjectID:         project.ID,
			ChapterID:         chapterID,
			Type:              memType,
			Title:             item.Title,
			Content:           item.Content,
			RelatedCharacters: item.Characters,
			RelatedLocations:  item.Locations,
			Importance:        clampImportance(item.Importance),
			StoryTimeline:     chapterNumber,
			Foreshadow:        foreshadow,
			CreatedAt:         now,
		})
	}

	e.resolveCharacters(ctx, project.ID, memories)

	return memories
}

// resolveCharacters rewrites character name references to roster ids with
// one batch lookup. Names the roster does not know are dropped; name drift
// between prose and roster is expected.
func (e *Extractor) resolveCharacters(ctx context.Context, projectID string, memories []*novel.Memory) {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range memories {
		for _, name := range m.RelatedCharacters {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return
	}

	roster, err := e.store.CharactersByName(ctx, projectID, names)
	if err != nil {
		e.logger.Warn("character name resolution failed",
			zap.String("project_id", projectID),
			zap.Error(err))
		for _, m := range memories {
			m.RelatedCharacters = nil
		}
		return
	}

	idsByName := make(map[string]string, len(roster))
	for _, c := range roster {
		idsByName[c.Name] = c.ID
	}

	for _, m := range memories {
		var ids []string
		for _, name := range m.RelatedCharacters {
			if id, ok := idsByName[name]; ok {
				ids = append(ids, id)
			}
		}
		m.RelatedCharacters = ids
	}
}

// parseExtractionResponse pulls the JSON object out of the model response.
// Models wrap JSON in prose and code fences; everything outside the first
// '{' and the last '}' is discarded.
func parseExtractionResponse(raw string) (*extractionResponse, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling extraction response: %w", err)
	}

	return &parsed, nil
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
