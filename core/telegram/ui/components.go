// Package ui builds inline query results.
package ui

import (
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// MaxInlineResults is the platform limit of results per inline answer.
const MaxInlineResults = 50

// NewSimpleArticleResult creates an ArticleResult with given ID, title and content.
func NewSimpleArticleResult(id, title, text string) *tele.ArticleResult {
	result := &tele.ArticleResult{
		Title: title,
		Text:  text,
	}
	result.SetResultID(id)
	return result
}

// StickerResults turns cached sticker file ids into inline results, starting
// at offset. It returns the results and the next offset ("" when exhausted).
func StickerResults(fileIDs []string, offset int) ([]any, string) {
	if offset < 0 || offset >= len(fileIDs) {
		return nil, ""
	}
	end := min(offset+MaxInlineResults, len(fileIDs))
	results := make([]any, 0, end-offset)
	for i := offset; i < end; i++ {
		r := &tele.StickerResult{Cache: fileIDs[i]}
		r.SetResultID(strconv.Itoa(i))
		results = append(results, r)
	}
	next := ""
	if end < len(fileIDs) {
		next = strconv.Itoa(end)
	}
	return results, next
}
