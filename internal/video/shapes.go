package video

import "github.com/tidwall/gjson"

// resultShape - одна из известных форм, в которой провайдер кладет ссылку на готовое видео.
type resultShape struct {
	name  string
	match func(root gjson.Result) (string, bool)
}

func pathShape(path string) resultShape {
	return resultShape{
		name: path,
		match: func(root gjson.Result) (string, bool) {
			v := root.Get(path)
			if v.Type != gjson.String || v.String() == "" {
				return "", false
			}
			return v.String(), true
		},
	}
}

// resultShapes проверяются по порядку, побеждает первая подошедшая.
var resultShapes = []resultShape{
	pathShape("content.video_url"),
	pathShape("output.video_url"),
	pathShape("output.video.url"),
	pathShape("output.0.url"),
	pathShape("output.0.video_url"),
	pathShape("video_url"),
	pathShape("output"),
}

// unwrap снимает необязательную обертку {"data": {...}}.
func unwrap(body []byte) gjson.Result {
	root := gjson.ParseBytes(body)
	if data := root.Get("data"); data.IsObject() {
		return data
	}
	return root
}

// ExtractVideoURL достает ссылку на видео из ответа со статусом succeeded.
// Если ни одна форма не подошла, возвращается пустая строка и ok=false.
func ExtractVideoURL(body []byte) (url string, shape string, ok bool) {
	root := unwrap(body)
	for _, s := range resultShapes {
		if v, matched := s.match(root); matched {
			return v, s.name, true
		}
	}
	return "", "", false
}

func extractTaskID(body []byte) string {
	root := gjson.ParseBytes(body)
	if id := root.Get("data.id").String(); id != "" {
		return id
	}
	return root.Get("id").String()
}

func extractErrorMessage(root gjson.Result) string {
	if msg := root.Get("error.message").String(); msg != "" {
		return msg
	}
	if e := root.Get("error"); e.Type == gjson.String {
		return e.String()
	}
	return root.Get("message").String()
}
