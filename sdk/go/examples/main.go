package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"CouncilChain/sdk/go/councilchain"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/reviews", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(councilchain.ReviewJob{
				ID:     "review-demo",
				Status: "pending",
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/reviews/review-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(councilchain.ReviewJob{
			ID:     "review-demo",
			Status: "succeeded",
			Result: &councilchain.VerdictSummary{
				ContentType:   "video",
				Approved:      true,
				ApprovalCount: 2,
				RejectCount:   1,
				ApprovalRate:  2.0 / 3.0,
				ChainID:       "11155111",
				BlockNumber:   "0x4a21",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := councilchain.NewClient(srv.URL, srv.Client())
	client.SetAPIKey("demo-key")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := client.SubmitReview(ctx, councilchain.ReviewSubmission{
		URL:   "https://youtube.com/watch?v=demo",
		Notes: "promo clip delivery",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted review %s (status=%s)\n", job.ID, job.Status)

	final, err := client.WaitForReview(ctx, job.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("review %s finished approved=%v rate=%.2f\n", final.ID, final.Result.Approved, final.Result.ApprovalRate)
}
