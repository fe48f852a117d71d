package models

import "time"

// ChangeSet is the server's answer to "what changed since T".
//
// ServerTime is the server clock at the moment the set was computed and becomes the next lastSync.
type ChangeSet struct {
	Created    []Song    `json:"created"`
	Modified   []Song    `json:"modified"`
	Deleted    []string  `json:"deleted"`
	ServerTime time.Time `json:"serverTime"`
}

// Normalize returns a copy in which every id appears in at most one list.
//
// Deleted takes precedence over modified, which takes precedence over created.
// Within a list, the copy with the latest UpdatedAt is kept.
func (c *ChangeSet) Normalize() *ChangeSet {
	out := &ChangeSet{ServerTime: c.ServerTime}

	deleted := make(map[string]struct{}, len(c.Deleted))
	for _, id := range c.Deleted {
		if id == "" {
			continue
		}
		if _, dup := deleted[id]; dup {
			continue
		}
		deleted[id] = struct{}{}
		out.Deleted = append(out.Deleted, id)
	}

	modified := latestByID(c.Modified, deleted)
	out.Modified = modified

	taken := make(map[string]struct{}, len(deleted)+len(modified))
	for id := range deleted {
		taken[id] = struct{}{}
	}
	for _, s := range modified {
		taken[s.ID] = struct{}{}
	}
	out.Created = latestByID(c.Created, taken)

	return out
}

// Len returns the number of changes across all lists.
func (c *ChangeSet) Len() int {
	return len(c.Created) + len(c.Modified) + len(c.Deleted)
}

// latestByID de-duplicates songs by id, skipping excluded ids and keeping first-seen order.
func latestByID(songs []Song, exclude map[string]struct{}) []Song {
	index := make(map[string]int, len(songs))
	var out []Song
	for _, s := range songs {
		if s.ID == "" {
			continue
		}
		if _, skip := exclude[s.ID]; skip {
			continue
		}
		if i, dup := index[s.ID]; dup {
			if s.UpdatedAt.After(out[i].UpdatedAt) {
				out[i] = s
			}
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}
