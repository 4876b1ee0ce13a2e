package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type joinInput struct {
	RoomId string `json:"roomId" validate:"required,max=64,excludesall=:*"`
	UserId string `json:"userId" validate:"required"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	_, ok := v.Validate(joinInput{RoomId: "ABCD", UserId: "user_1"})
	assert.True(t, ok)

	errs, ok := v.Validate(joinInput{RoomId: "ABCD"})
	assert.False(t, ok)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "userId", errs[0].Field)
		assert.Equal(t, "REQUIRED", errs[0].Code)
		assert.Equal(t, "userId is required", errs[0].Message)
	}
}

func TestValidateExcludedChars(t *testing.T) {
	errs, ok := NewValidator().Validate(joinInput{RoomId: "AB:CD", UserId: "user_1"})
	assert.False(t, ok)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "EXCLUDESALL", errs[0].Code)
		assert.Equal(t, "roomId must not contain any of :*", errs[0].Message)
	}
}

func TestMessage(t *testing.T) {
	errs, ok := NewValidator().Validate(joinInput{})
	assert.False(t, ok)
	assert.Equal(t, "roomId is required; userId is required", Message(errs))
}
