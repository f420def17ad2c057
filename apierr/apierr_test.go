package apierr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snow-wind-001/CodeRecoder/apierr"
)

func TestNew_CarriesKindAndMessage(t *testing.T) {
	err := apierr.New(apierr.NotFound, "snapshot not found")

	assert.Equal(t, "snapshot not found", err.Error())
	assert.Equal(t, apierr.NotFound, apierr.KindOf(err))
	assert.True(t, apierr.Is(err, apierr.NotFound))
	assert.False(t, apierr.Is(err, apierr.Corrupt))
}

func TestWrap_PreservesCauseInMessageAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := apierr.Wrap(apierr.IoError, cause, "writing snapshot metadata")

	assert.Contains(t, err.Error(), "writing snapshot metadata")
	assert.Contains(t, err.Error(), "disk full")
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilCauseBehavesLikeNew(t *testing.T) {
	err := apierr.Wrap(apierr.InvalidPath, nil, "bad path")

	assert.Equal(t, "bad path", err.Error())
	assert.Nil(t, err.Cause)
}

func TestKindOf_NonApierrReturnsEmptyKind(t *testing.T) {
	assert.Equal(t, apierr.Kind(""), apierr.KindOf(errors.New("plain")))
}
