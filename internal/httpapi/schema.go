package httpapi

import (
	"encoding/base64"
	"fmt"
	"strings"

	"voice-auth/internal/voice"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type voiceLoginRequest struct {
	PhraseID *int64 `json:"phraseId"`
	Audio    string `json:"audio" binding:"required"`
}

type identifyRequest struct {
	Audio string `json:"audio" binding:"required"`
}

type verifyRequest struct {
	PhraseID int64  `json:"phraseId" binding:"required"`
	Audio    string `json:"audio" binding:"required"`
}

type recordingRequest struct {
	PhraseID int64  `json:"phraseId" binding:"required"`
	Audio    string `json:"audio" binding:"required"`
}

type enrollRequest struct {
	Recordings []recordingRequest `json:"recordings" binding:"required,dive"`
}

type sampleRequest struct {
	PhraseID *int64 `json:"phraseId"`
	Audio    string `json:"audio" binding:"required"`
}

type sampleResponse struct {
	ID        string `json:"id"`
	PhraseID  *int64 `json:"phraseId,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func toSampleResponse(s voice.Sample) sampleResponse {
	return sampleResponse{ID: s.ID, PhraseID: s.PhraseID, CreatedAt: s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")}
}

// decodeAudio accepts plain base64 or a data URI such as
// "data:audio/webm;base64,AAAA". Padding is optional.
func decodeAudio(field, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, fmt.Errorf("%w: %s: malformed data URI", voice.ErrValidation, field)
		}
		if !strings.HasSuffix(s[:i], ";base64") {
			return nil, fmt.Errorf("%w: %s: data URI must be base64 encoded", voice.ErrValidation, field)
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: %s is empty", voice.ErrValidation, field)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", voice.ErrValidation, field)
	}
	return b, nil
}

type roleRequest struct {
	Role string `json:"role"`
}

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(idn voice.Identity) userResponse {
	return userResponse{
		ID:        idn.ID,
		Username:  idn.Username,
		Role:      idn.Role,
		CreatedAt: idn.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
