// Package tts wraps an OpenAI-compatible speech synthesis endpoint and
// resolves dialogue roles to configured voices.
package tts
