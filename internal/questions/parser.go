package questions

import (
	"context"
	"errors"
	"fmt"

	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
	"github.com/spherical/quizgen/internal/sanitize"
)

// Repairer asks an external collaborator to fix broken JSON syntax.
type Repairer interface {
	Repair(ctx context.Context, broken string) (string, error)
}

// ParseError is returned when every parse tier failed. RawText is the text
// the caller handed in, kept for the raw fail-safe document.
type ParseError struct {
	RawText         string
	Cause           error
	RepairAttempted bool
}

func (e *ParseError) Error() string {
	if e.RepairAttempted {
		return fmt.Sprintf("parse failed after repair: %v", e.Cause)
	}
	return fmt.Sprintf("parse failed: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Parser runs the tiered parse: decode, re-sanitize and decode, then one
// repair request.
type Parser struct {
	repairer Repairer
	logger   *observability.Logger
}

// NewParser creates a parser. A nil repairer disables the repair tier.
func NewParser(repairer Repairer, logger *observability.Logger) *Parser {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Parser{repairer: repairer, logger: logger}
}

// ParseResponse sanitizes a raw AI reply and parses it.
func (p *Parser) ParseResponse(ctx context.Context, raw string, expected domain.QuestionKind) (*domain.QuestionSet, error) {
	set, err := p.Parse(ctx, sanitize.Sanitize(raw), expected)
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.RawText = raw
	}
	return set, err
}

// Parse validates already sanitized text. The repair request is issued at
// most once.
func (p *Parser) Parse(ctx context.Context, sanitized string, expected domain.QuestionKind) (*domain.QuestionSet, error) {
	set, err := p.attempt(sanitized, expected)
	if err == nil {
		return set, nil
	}

	if p.repairer == nil {
		return nil, &ParseError{RawText: sanitized, Cause: err}
	}

	p.logger.Warn().Err(err).Msg("Response is not valid question JSON, requesting repair")

	repaired, rerr := p.repairer.Repair(ctx, sanitized)
	if rerr != nil {
		if !domain.IsType(rerr, domain.ErrorTypeCancelled) {
			rerr = domain.TransportError("repair request failed", rerr)
		}
		return nil, &ParseError{
			RawText:         sanitized,
			Cause:           errors.Join(err, rerr),
			RepairAttempted: true,
		}
	}

	set, err = p.attempt(sanitize.Sanitize(repaired), expected)
	if err != nil {
		return nil, &ParseError{RawText: sanitized, Cause: err, RepairAttempted: true}
	}

	p.logger.Info().Int("questions", len(set.Questions)).Msg("Repaired response parsed")
	return set, nil
}

func (p *Parser) attempt(text string, expected domain.QuestionKind) (*domain.QuestionSet, error) {
	set, err := Validate([]byte(text), expected)
	if err == nil {
		p.logDeclared(set, expected)
		return set, nil
	}

	again := sanitize.Sanitize(text)
	if again == text {
		return nil, err
	}
	set, err = Validate([]byte(again), expected)
	if err == nil {
		p.logDeclared(set, expected)
	}
	return set, err
}

func (p *Parser) logDeclared(set *domain.QuestionSet, expected domain.QuestionKind) {
	if expected.Valid() && set.Kind != expected {
		p.logger.Warn().
			Str("expected", string(expected)).
			Str("declared", string(set.Kind)).
			Msg("Response declares a different question kind")
	}
	if set.TotalCount != len(set.Questions) {
		p.logger.Debug().
			Int("declared", set.TotalCount).
			Int("actual", len(set.Questions)).
			Msg("Question count mismatch")
	}
}
