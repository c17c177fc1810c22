// Command simulate drives synthetic traffic through both pipelines
// in-process: a mixed batch of content through the tier cascade and a
// chat storm through the stream processor. Useful for eyeballing
// decision distribution and latency without a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/moderation/internal/domain"
	"github.com/sentra/moderation/internal/mlscoring"
	"github.com/sentra/moderation/internal/moderation"
	"github.com/sentra/moderation/internal/reputation"
	"github.com/sentra/moderation/internal/review"
	"github.com/sentra/moderation/internal/stream"
	"github.com/sentra/moderation/internal/triage"
)

var sampleTexts = []string{
	"just finished a great book, highly recommend it",
	"anyone up for a game tonight?",
	"BUY NOW!!! limited time offer, click here http://bit.ly/abc",
	"you are a stupid idiot and everyone hates you",
	"check out http://malware-site.com for free stuff",
	"congratulations you have won a prize, wire transfer required",
	"the weather has been lovely this week",
	"I will kill you if you post that again",
	"selling cheap followers, click my link",
	"what a wonderful excellent day, love it",
}

var chatTexts = []string{
	"hi everyone",
	"lol that was funny",
	"BUY FOLLOWERS CHEAP http://a.io http://b.io http://c.io",
	"you are all idiots, I hate this channel",
	"free robux for everyone",
	"anyone seen the match?",
	"spam spam spam",
}

func main() {
	posts := flag.Int("posts", 50, "content items to run through the cascade")
	messages := flag.Int("messages", 200, "chat messages to stream")
	users := flag.Int("users", 10, "distinct simulated users")
	seed := flag.Int64("seed", 42, "rng seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	rep := reputation.NewEngine()
	tr := triage.NewService(triage.DefaultConfig())
	scorer := mlscoring.NewReferenceScorer().WithNoise(*seed, 0.05)
	ml := mlscoring.NewService(scorer, mlscoring.NewReferenceImageAnalyzer(), mlscoring.DefaultThresholds())
	queue := review.NewQueue(nil)
	orch := moderation.NewOrchestrator(moderation.DefaultConfig(), rep, tr, ml, queue)

	userIDs := make([]uuid.UUID, *users)
	for i := range userIDs {
		userIDs[i] = uuid.New()
		rep.CreateUser(userIDs[i], fmt.Sprintf("sim-user-%d", i))
	}

	// Flow A: mixed content batch.
	decisions := map[domain.ContentStatus]int{}
	var totalMs int64
	start := time.Now()
	for i := 0; i < *posts; i++ {
		content := &domain.Content{
			ID:          uuid.New(),
			ContentType: domain.ContentForumPost,
			UserID:      userIDs[rng.Intn(len(userIDs))],
			TextContent: sampleTexts[rng.Intn(len(sampleTexts))],
			CreatedAt:   time.Now(),
		}
		result, _, err := orch.ProcessContent(context.Background(), content)
		if err != nil {
			log.Printf("content %s failed: %v", content.ID, err)
			continue
		}
		decisions[result.Decision]++
		totalMs += result.ProcessingTimeMs
	}
	log.Printf("Flow A: %d posts in %v (avg %.1fms per decision)",
		*posts, time.Since(start), float64(totalMs)/float64(*posts))
	for status, n := range decisions {
		log.Printf("  %-12s %d", status, n)
	}
	log.Printf("  review queue depth: %d", queue.Len())

	// Flow B: chat storm through the keyed worker pool.
	processor := stream.NewProcessor(stream.DefaultConfig(), stream.NewMemoryBackend())
	pool := stream.NewKeyedPool(processor, 4, 64)

	chatDecisions := map[domain.ContentStatus]int{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range pool.Decisions() {
			chatDecisions[d.Decision]++
		}
	}()

	base := time.Now()
	start = time.Now()
	for i := 0; i < *messages; i++ {
		pool.Submit(&domain.ChatMessage{
			ID:        uuid.New(),
			UserID:    userIDs[rng.Intn(len(userIDs))],
			ChannelID: fmt.Sprintf("channel-%d", rng.Intn(3)),
			Text:      chatTexts[rng.Intn(len(chatTexts))],
			Timestamp: base.Add(time.Duration(i) * 200 * time.Millisecond),
		})
	}
	pool.Close()
	<-done

	log.Printf("Flow B: %d messages in %v (%d late)", *messages, time.Since(start), processor.LateCount())
	for status, n := range chatDecisions {
		log.Printf("  %-12s %d", status, n)
	}
	log.Printf("  channels tracked: %d", processor.Channels().ChannelCount())
}
