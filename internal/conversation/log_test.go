package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestLog_Bounded(t *testing.T) {
	tests := []struct {
		name      string
		max       int
		exchanges int
		wantLen   int
		wantFirst string
	}{
		{name: "under bound", max: 20, exchanges: 3, wantLen: 6, wantFirst: "q0"},
		{name: "exactly at bound", max: 4, exchanges: 2, wantLen: 4, wantFirst: "q0"},
		{name: "over bound drops oldest", max: 4, exchanges: 5, wantLen: 4, wantFirst: "q3"},
		{name: "default bound", max: 0, exchanges: 15, wantLen: 20, wantFirst: "q5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := newLog(tt.max, fixedClock())
			for i := 0; i < tt.exchanges; i++ {
				log.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			}
			msgs := log.All()
			require.Len(t, msgs, tt.wantLen)
			assert.Equal(t, tt.wantLen, log.Len())
			assert.Equal(t, tt.wantFirst, msgs[0].Content)
			assert.Equal(t, RoleUser, msgs[0].Role)
			assert.Equal(t, RoleAssistant, msgs[len(msgs)-1].Role)
		})
	}
}

func TestLog_AllReturnsCopy(t *testing.T) {
	log := NewLog(10)
	log.Append(RoleUser, "hello")

	msgs := log.All()
	msgs[0].Content = "changed"

	assert.Equal(t, "hello", log.All()[0].Content)
}

func TestLog_ConcurrentExchangesStayPaired(t *testing.T) {
	log := NewLog(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			log.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		}(i)
	}
	wg.Wait()

	msgs := log.All()
	require.Len(t, msgs, 100)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, RoleUser, msgs[i].Role)
		assert.Equal(t, RoleAssistant, msgs[i+1].Role)
		assert.Equal(t, "a"+msgs[i].Content[1:], msgs[i+1].Content)
	}
}
