package orchestrator

import "strings"

// Английские фразы сравниваются без учета регистра и лишних пробелов.
var finishedPhrasesEN = []string{
	"i finished",
	"i'm finished",
	"i'm done",
	"im done",
	"i am done",
	"all done",
	"finished drawing",
	"done drawing",
	"drawing is done",
	"my drawing is finished",
}

// Китайские фразы ищутся как есть.
var finishedPhrasesZH = []string{
	"画完了",
	"画好了",
	"我画完",
	"完成了",
	"画完啦",
	"画好啦",
}

// IsDrawingCompleted сообщает, что ребенок написал в чат о завершении рисунка.
func IsDrawingCompleted(text string) bool {
	normalized := normalize(text)
	for _, p := range finishedPhrasesEN {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	for _, p := range finishedPhrasesZH {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "’", "'")
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
