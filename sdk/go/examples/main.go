package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"OpenAgent-Loop/sdk/go/openagent"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agent/execute", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openagent.AgentResponse{
			Content: "the module has 4 direct dependencies",
			Type:    "success",
		})
	})
	mux.HandleFunc("/api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(openagent.Run{
				ID:     "run-demo",
				Status: "pending",
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/runs/run-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openagent.Run{
			ID:     "run-demo",
			Status: "succeeded",
			Response: &openagent.AgentResponse{
				Content: "dependency scan finished",
				Type:    "success",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := openagent.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	response, err := client.Execute(ctx, openagent.ExecuteRequest{Input: "how many dependencies does the module have?"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("execute response (%s): %s\n", response.Type, response.Content)

	created, err := client.SubmitRun(ctx, openagent.RunSubmission{Input: "scan dependencies"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted run %s (status=%s)\n", created.ID, created.Status)

	final, err := client.WaitRun(ctx, created.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("run %s finished with status %s: %s\n", final.ID, final.Status, final.Response.Content)
}
