package message

import "github.com/batalovmv/stream-alerts-sub001/internal/domain"

const (
	LabelWatchStream = "Смотреть стрим"
	LabelProfile     = "Профиль"
)

// BuildDefaultButtons returns the watch button then the profile button,
// each only when its URL variable is non-empty.
func BuildDefaultButtons(vars Vars) []domain.Button {
	buttons := make([]domain.Button, 0, 2)
	if u := vars[VarStreamURL]; u != "" {
		buttons = append(buttons, domain.Button{Label: LabelWatchStream, URL: u})
	}
	if u := vars[VarProfileURL]; u != "" {
		buttons = append(buttons, domain.Button{Label: LabelProfile, URL: u})
	}
	return buttons
}

// RenderButtons resolves placeholders in custom buttons and drops any whose
// label or URL ends up empty. A nil slice selects the default buttons.
func RenderButtons(buttons []domain.Button, vars Vars) []domain.Button {
	if buttons == nil {
		return BuildDefaultButtons(vars)
	}

	out := make([]domain.Button, 0, len(buttons))
	for _, btn := range buttons {
		label := Substitute(btn.Label, vars)
		url := Substitute(btn.URL, vars)
		if label == "" || url == "" {
			continue
		}
		out = append(out, domain.Button{Label: label, URL: url})
	}
	return out
}
