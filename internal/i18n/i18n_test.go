package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocale(context.Background(), NewLocale(lang))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang, id, want string
	}{
		{"en", "StatsTitle", "Study statistics"},
		{"ru", "StatsTitle", "Статистика подготовки"},
		{"en", "ErrNoOpenSession", "No session is open. Start a session first."},
		{"de", "StatsTitle", "Study statistics"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			if got := T(initLang(t, tt.lang), tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	en := initLang(t, "en")
	if got := Tp(en, "StatsSessions", 1); got != "1 session" {
		t.Errorf("Tp(1) = %q", got)
	}
	if got := Tp(en, "StatsSessions", 5); got != "5 sessions" {
		t.Errorf("Tp(5) = %q", got)
	}

	ru := initLang(t, "ru")
	for n, want := range map[int]string{1: "1 сессия", 3: "3 сессии", 5: "5 сессий", 21: "21 сессия"} {
		if got := Tp(ru, "StatsSessions", n); got != want {
			t.Errorf("Tp(ru, %d) = %q, want %q", n, got, want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")
	got := Td(ctx, "StatsExam", map[string]any{"Label": "Azure", "ExamID": "AZ-900"})
	if got != "Azure (AZ-900)" {
		t.Errorf("Td(StatsExam) = %q", got)
	}
}

func TestFormatting(t *testing.T) {
	ctx := initLang(t, "en")
	if got := Percent(ctx, 0.625); got != "62.5%" {
		t.Errorf("Percent = %q", got)
	}
	if got := Number(ctx, 1234567); got != "1,234,567" {
		t.Errorf("Number = %q", got)
	}
	if got := Duration(ctx, 3*3600+25*60+59); got != "3h 25m" {
		t.Errorf("Duration = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")
	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInitBadLanguage(t *testing.T) {
	if err := Init("not a language!"); err == nil {
		t.Error("expected parse error")
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "StatsTitle")
	}))

	tests := []struct {
		accept, want string
	}{
		{"", "Study statistics"},
		{"ru-RU,ru;q=0.9,en;q=0.5", "Статистика подготовки"},
		{"ja", "Study statistics"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.accept != "" {
			req.Header.Set("Accept-Language", tt.accept)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.accept, got, tt.want)
		}
	}
}
