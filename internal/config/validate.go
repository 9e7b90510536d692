package config

import "strings"

// Status - результат проверки конфигурации внешних провайдеров.
type Status struct {
	Valid      bool            `json:"valid"`
	Configured map[string]bool `json:"configured"`
	Missing    []string        `json:"missing"`
	Errors     []string        `json:"errors"`
}

// Validate проверяет, что заданы ключи провайдеров и что их формат похож на правильный.
// Отсутствие ключа не мешает запуску: соответствующая функция вернет ошибку конфигурации при вызове.
func (c *Config) Validate() Status {
	st := Status{
		Configured: map[string]bool{
			"language_model_api_key":  c.AI.APIKey != "",
			"language_model_base_url": c.AI.BaseURL != "",
			"language_model":          c.AI.Model != "",
			"video_api_key":           c.Video.APIKey != "",
			"video_base_url":          c.Video.BaseURL != "",
			"video_model":             c.Video.Model != "",
			"tencent_secret_id":       c.Tencent.SecretID != "",
			"tencent_secret_key":      c.Tencent.SecretKey != "",
			"tencent_region":          c.Tencent.Region != "",
		},
		Missing: []string{},
		Errors:  []string{},
	}

	if c.AI.APIKey == "" && c.AI.ClientType != "ollama" {
		st.Missing = append(st.Missing, "ARK_API_KEY (Language Model)")
	}
	if c.AI.BaseURL == "" {
		st.Missing = append(st.Missing, "ARK_BASE_URL")
	}
	if c.AI.Model == "" {
		st.Missing = append(st.Missing, "ARK_MODEL")
	}
	if c.Video.APIKey == "" {
		st.Missing = append(st.Missing, "ARK_VIDEO_API_KEY (Video Generation)")
	}
	if c.Video.BaseURL == "" {
		st.Missing = append(st.Missing, "ARK_VIDEO_BASE_URL")
	}
	if c.Tencent.SecretID == "" {
		st.Missing = append(st.Missing, "TENCENT_SECRET_ID")
	}
	if c.Tencent.SecretKey == "" {
		st.Missing = append(st.Missing, "TENCENT_SECRET_KEY")
	}
	if c.Tencent.Region == "" {
		st.Missing = append(st.Missing, "TENCENT_REGION")
	}

	if c.AI.BaseURL != "" && !strings.HasPrefix(c.AI.BaseURL, "http") {
		st.Errors = append(st.Errors, "ARK_BASE_URL should be a valid URL")
	}
	if c.Video.BaseURL != "" && !strings.HasPrefix(c.Video.BaseURL, "http") {
		st.Errors = append(st.Errors, "ARK_VIDEO_BASE_URL should be a valid URL")
	}
	if c.Tencent.SecretID != "" && !strings.HasPrefix(c.Tencent.SecretID, "AKID") {
		st.Errors = append(st.Errors, "TENCENT_SECRET_ID format may be incorrect (should start with AKID)")
	}

	st.Valid = len(st.Missing) == 0 && len(st.Errors) == 0
	return st
}
