// README: Prints how Gemini parses a free-text ride request; handy for prompt tuning.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ridepool/internal/ai"
	"ridepool/internal/logging"
)

func main() {
	tz := flag.String("tz", "Asia/Kolkata", "zone the current time is given in")
	flag.Parse()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		logging.Fatal().Msg("GEMINI_API_KEY environment variable not set")
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		logging.Fatal().Err(err).Msg("timezone")
	}

	message := strings.Join(flag.Args(), " ")
	if message == "" {
		message = "I need a ride tomorrow at 9am from Koramangala to Whitefield for 2 people"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	provider, err := ai.NewGeminiProvider(ctx, apiKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("initialize AI provider")
	}
	defer provider.Close()

	fmt.Printf("User: %s\n", message)
	q, err := provider.ParseRideQuery(ctx, message, map[string]string{
		"current_time": time.Now().In(loc).Format(time.RFC3339),
		"region":       "Bangalore, India",
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("parse ride query")
	}

	out, _ := json.MarshalIndent(q, "", "  ")
	fmt.Println(string(out))
	if day, err := q.Day(loc); err == nil && day != nil {
		fmt.Printf("Search day: %s\n", day.Format("Mon 2 Jan 2006"))
	}
	fmt.Printf("Ready to search: %v\n", q.Ready())
}
