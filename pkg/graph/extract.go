package graph

import (
	"context"
	"fmt"

	"github.com/EHS-Labs/sage/backend/pkg/ai"
	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
)

// ExtractionInput is the document content handed to the extraction model.
type ExtractionInput struct {
	DocumentType string
	Content      string
	Metadata     map[string]string
}

// ExtractionResult is the candidate batch produced by one extraction call.
type ExtractionResult struct {
	Entities      []common.Candidate
	Relationships []common.CandidateRelationship
	ModelUsed     string
}

// Extractor produces candidate entities and relationships from document text.
type Extractor interface {
	Extract(ctx context.Context, input ExtractionInput) (ExtractionResult, error)
}

// wire format between the model's structured output and the candidate types.
// Relationship endpoints arrive as "Type:businessKey" strings and are parsed
// into typed references here; candidates never carry the string form.
type wireLocator struct {
	Section   string `json:"section" jsonschema_description:"Section heading or number the fact was found under, e.g. '3.1'"`
	Page      int    `json:"page,omitempty" jsonschema_description:"Page number when the document has pages"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`
}

type wireEntity struct {
	EntityType    string         `json:"entity_type" jsonschema_description:"One of: Process, Audit, Document, FailureMode, Risk, Control, Finding, Requirement, ProcedureStep"`
	Properties    map[string]any `json:"properties" jsonschema_description:"Properties of the entity as stated in the document"`
	Confidence    float64        `json:"confidence" jsonschema_description:"Confidence in this extraction between 0 and 1"`
	SourceLocator wireLocator    `json:"source_locator"`
}

type wireRelationship struct {
	From          string         `json:"from" jsonschema_description:"Source entity as 'Type:businessKey', referencing an entity in this batch"`
	To            string         `json:"to" jsonschema_description:"Target entity as 'Type:businessKey', referencing an entity in this batch"`
	Type          string         `json:"type" jsonschema_description:"Relationship type, e.g. MITIGATES, IMPLIES, EVALUATES"`
	Confidence    float64        `json:"confidence"`
	Properties    map[string]any `json:"properties,omitempty"`
	SourceLocator wireLocator    `json:"source_locator"`
}

type wireBatch struct {
	Entities      []wireEntity       `json:"entities"`
	Relationships []wireRelationship `json:"relationships"`
}

// ModelExtractor runs knowledge extraction through an injected AI client
// using structured output.
type ModelExtractor struct {
	client ai.Client
	model  string
}

// NewModelExtractorParams configures a ModelExtractor.
type NewModelExtractorParams struct {
	Client ai.Client
	Model  string
}

// NewModelExtractor creates a ModelExtractor.
func NewModelExtractor(params NewModelExtractorParams) *ModelExtractor {
	return &ModelExtractor{
		client: params.Client,
		model:  params.Model,
	}
}

// Extract asks the model for a candidate batch. Model failures and
// unparseable output surface as ExtractionError; malformed endpoint
// references are dropped with a warning, not errored.
func (e *ModelExtractor) Extract(ctx context.Context, input ExtractionInput) (ExtractionResult, error) {
	prompt := buildExtractionPrompt(input)

	var batch wireBatch
	err := e.client.GenerateCompletionWithFormat(
		ctx,
		"knowledge_extraction",
		"Entities and relationships extracted from a safety-audit document",
		prompt,
		&batch,
		ai.WithModel(e.model),
		ai.WithSystemPrompts(extractionSystemPrompt),
		ai.WithTemperature(0.1),
	)
	if err != nil {
		return ExtractionResult{}, &common.ExtractionError{Err: err}
	}

	result := ExtractionResult{ModelUsed: e.model}
	for _, entity := range batch.Entities {
		result.Entities = append(result.Entities, common.Candidate{
			EntityType: common.EntityType(entity.EntityType),
			Properties: entity.Properties,
			Confidence: entity.Confidence,
			Locator:    locatorFromWire(entity.SourceLocator),
		})
	}
	for _, rel := range batch.Relationships {
		from, err := common.ParseEntityRef(rel.From)
		if err != nil {
			logger.Warn("[Graph][Extract] Dropping relationship with malformed source reference", "from", rel.From, "error", err)
			continue
		}
		to, err := common.ParseEntityRef(rel.To)
		if err != nil {
			logger.Warn("[Graph][Extract] Dropping relationship with malformed target reference", "to", rel.To, "error", err)
			continue
		}
		result.Relationships = append(result.Relationships, common.CandidateRelationship{
			From:       from,
			To:         to,
			Type:       common.RelationshipType(rel.Type),
			Confidence: rel.Confidence,
			Properties: rel.Properties,
			Locator:    locatorFromWire(rel.SourceLocator),
		})
	}

	logger.Debug("[Graph][Extract] Extraction complete",
		"entities", len(result.Entities), "relationships", len(result.Relationships), "model", e.model)
	return result, nil
}

func locatorFromWire(w wireLocator) common.SourceLocator {
	return common.SourceLocator{
		Section:   w.Section,
		Page:      w.Page,
		LineStart: w.LineStart,
		LineEnd:   w.LineEnd,
	}
}

func buildExtractionPrompt(input ExtractionInput) string {
	meta := ""
	for k, v := range input.Metadata {
		meta += fmt.Sprintf("%s: %s\n", k, v)
	}
	return fmt.Sprintf(extractionPromptTemplate, input.DocumentType, meta, input.Content)
}
