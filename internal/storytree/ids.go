package storytree

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

const maxSlugRunes = 32

// NodeID выводит id узла из пути родителя, позиции в журнале решений и текста варианта.
// Выбранный узел и заглушка для одного и того же варианта под одним родителем
// получают одинаковый id, поэтому повторная сборка дает те же идентификаторы.
// Хеш берется от (parentID, optionText), так что варианты с одинаковым slug не сталкиваются.
func NodeID(parentID string, depth int, optionText string) string {
	sum := sha256.Sum256([]byte(parentID + "\x00" + optionText))
	return fmt.Sprintf("%s/%d-%s-%s", parentID, depth, Slug(optionText), hex.EncodeToString(sum[:4]))
}

// Slug приводит текст варианта к виду, пригодному для id.
func Slug(text string) string {
	var b strings.Builder
	runes := 0
	dash := false
	for _, r := range strings.ToLower(text) {
		if runes >= maxSlugRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			runes++
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			runes++
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "option"
	}
	return slug
}
