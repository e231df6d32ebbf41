package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/translate"
	"github.com/gin-gonic/gin"
)

const (
	translationSourceLanguage = "zh"
	translationTargetLanguage = "en"
	defaultTranslationHistory = 50
	maxTranslationHistory     = 500
	translationSearchLimit    = 20
)

// Translator converts Chinese text to English.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text string) (string, error)
}

type TranslateTextAPI interface {
	TranslateText(ctx context.Context, params *translate.TranslateTextInput, optFns ...func(*translate.Options)) (*translate.TranslateTextOutput, error)
}

// AWSTranslator implements Translator using AWS Translate.
type AWSTranslator struct {
	Client TranslateTextAPI
}

func (t *AWSTranslator) Name() string {
	return "aws-translate"
}

func (t *AWSTranslator) Translate(ctx context.Context, text string) (string, error) {
	out, err := t.Client.TranslateText(ctx, &translate.TranslateTextInput{
		Text:               aws.String(text),
		SourceLanguageCode: aws.String(translationSourceLanguage),
		TargetLanguageCode: aws.String(translationTargetLanguage),
	})
	if err != nil {
		return "", fmt.Errorf("aws translate: %w", err)
	}
	if out.TranslatedText == nil || *out.TranslatedText == "" {
		return "", errors.New("aws translate: no translation returned")
	}
	return *out.TranslatedText, nil
}

// passthroughTranslator returns the input unchanged. Used when AWS Translate
// is disabled.
type passthroughTranslator struct{}

func (passthroughTranslator) Name() string { return "passthrough" }

func (passthroughTranslator) Translate(_ context.Context, text string) (string, error) {
	return text, nil
}

func newTranslator(ctx context.Context, cfg *Config) (Translator, error) {
	if !cfg.UseAWSTranslate || cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
		return passthroughTranslator{}, nil
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return &AWSTranslator{Client: translate.NewFromConfig(awsCfg)}, nil
}

type translateRequest struct {
	ChineseText string `json:"chineseText"`
	Context     string `json:"context"`
	Category    string `json:"category"`
}

// translateCached returns the cached translation of text, translating and
// storing it on a miss. A failed translation is stored as the source text.
func (a *App) translateCached(ctx context.Context, req translateRequest) (*Translation, error) {
	now := a.now().UTC()
	cached, err := a.translations.RecordUse(ctx, req.ChineseText, now)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		a.metrics.translationLookup(true)
		return cached, nil
	}
	a.metrics.translationLookup(false)

	translated, err := a.translator.Translate(ctx, req.ChineseText)
	if err != nil {
		a.log.Warn("translation failed, caching source text", "translator", a.translator.Name(), "err", err)
		translated = req.ChineseText
	}

	return a.translations.Insert(ctx, Translation{
		Original:     req.ChineseText,
		Translations: map[string]string{translationTargetLanguage: translated},
		Timestamp:    now,
		Context:      req.Context,
		Category:     req.Category,
		UsageCount:   1,
		LastUsed:     now,
	})
}

func (a *App) translateHandler(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.ChineseText) == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Chinese text is required"})
		return
	}

	entry, err := a.translateCached(c.Request.Context(), req)
	if err != nil {
		a.log.Error("translate", "err", err)
		writeAPIError(c, &apiError{Status: http.StatusInternalServerError, Message: "Failed to translate text", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entry})
}

func (a *App) translationHistoryHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		entries []Translation
		err     error
	)
	if query := strings.TrimSpace(c.Query("q")); query != "" {
		entries, err = a.translations.Search(ctx, query, translationSearchLimit)
	} else {
		limit := defaultTranslationHistory
		if raw := c.Query("limit"); raw != "" {
			if parsed, convErr := strconv.Atoi(raw); convErr == nil && parsed > 0 {
				limit = min(parsed, maxTranslationHistory)
			}
		}
		entries, err = a.translations.History(ctx, limit)
	}
	if err != nil {
		a.log.Error("translation history", "err", err)
		writeAPIError(c, &apiError{Status: http.StatusInternalServerError, Message: "Failed to retrieve translations", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}

func (a *App) deleteTranslationHandler(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Translation ID is required"})
		return
	}

	deleted, err := a.translations.Delete(c.Request.Context(), id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if !deleted {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Message: "Translation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Translation deleted successfully"})
}
