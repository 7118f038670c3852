// The collabnotes agent is a headless client: it joins a document, prints
// what collaborators do, and appends every line typed on stdin to the
// document. Useful for demos and for watching a document from a terminal.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"collabnotes/client"
	"collabnotes/ot"
	"collabnotes/protocol"
)

func main() {
	serverAddr := flag.String("server", "", "server host:port (default: discover via mDNS)")
	docID := flag.String("doc", "", "document id to join (default: first listed document)")
	title := flag.String("title", "", "create a document with this title and join it")
	name := flag.String("name", "", "display name")
	statePath := flag.String("state", defaultStatePath(), "identity database path")
	flag.Parse()

	identity, err := client.LoadOrCreateIdentity(*statePath, *name)
	if err != nil {
		log.Fatalf("Failed to load identity: %v", err)
	}
	log.Printf("Running as %s (%s)", identity.DisplayName, identity.UserID)

	addr := *serverAddr
	if addr == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		addr, err = client.DiscoverServer(ctx)
		if err != nil {
			log.Fatalf("Server discovery failed: %v (use -server host:port)", err)
		}
		log.Printf("Discovered server at %s", addr)
	}

	doc, err := pickDocument("http://"+addr, identity, *docID, *title)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("Joining document %q (%s)", doc.Title, doc.ID)

	ctrl := client.NewController(identity)
	ctrl.OnStateChange = func(st client.State) {
		log.Printf("[connection] %s", st)
	}
	ctrl.OnRemoteOperation = func(op ot.Operation) {
		log.Printf("[edit] %s by %s", op, op.UserID)
	}
	ctrl.OnPresenceChange = func(users []client.PresenceEntry) {
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = u.DisplayName
			if u.HasCursor {
				names[i] = fmt.Sprintf("%s@%d", u.DisplayName, u.Cursor)
			}
		}
		log.Printf("[present] %s", strings.Join(names, ", "))
	}
	ctrl.OnContentChange = func(content string) {
		log.Printf("[document] %d chars", len([]rune(content)))
	}
	ctrl.Open("ws://"+addr+"/api/ws", doc)
	defer ctrl.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		content := ctrl.Content() + scanner.Text() + "\n"
		ctrl.Edit(content)
		ctrl.SetCursor(len([]rune(content)))
	}
	if err := scanner.Err(); err != nil {
		log.Printf("stdin: %v", err)
	}
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "collabnotes.db"
	}
	return filepath.Join(home, ".collabnotes.db")
}

// pickDocument resolves which document to join: an explicit id, a freshly
// created one, or the first the server lists.
func pickDocument(baseURL string, identity client.Identity, docID, title string) (protocol.Document, error) {
	switch {
	case docID != "":
		var doc protocol.Document
		if err := getJSON(baseURL+"/api/docs/"+docID, &doc); err != nil {
			return protocol.Document{}, fmt.Errorf("fetching document %s: %w", docID, err)
		}
		return doc, nil

	case title != "":
		body, err := json.Marshal(map[string]string{
			"title":         title,
			"createdBy":     identity.UserID,
			"createdByName": identity.DisplayName,
		})
		if err != nil {
			return protocol.Document{}, err
		}
		resp, err := http.Post(baseURL+"/api/docs", "application/json", bytes.NewReader(body))
		if err != nil {
			return protocol.Document{}, fmt.Errorf("creating document: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return protocol.Document{}, fmt.Errorf("creating document: server returned %s", resp.Status)
		}
		var doc protocol.Document
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return protocol.Document{}, fmt.Errorf("decoding created document: %w", err)
		}
		return doc, nil

	default:
		var docs []protocol.Document
		if err := getJSON(baseURL+"/api/docs", &docs); err != nil {
			return protocol.Document{}, fmt.Errorf("listing documents: %w", err)
		}
		if len(docs) == 0 {
			return protocol.Document{}, fmt.Errorf("no documents on the server; create one with -title")
		}
		return docs[0], nil
	}
}

func getJSON(url string, v interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
