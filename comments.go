package nomadlabs

import (
	"slices"
	"sort"
)

// BuildTree assembles flat comment rows into a discussion tree. Roots are
// ordered newest first and replies oldest first. A comment whose parent is
// missing (or that sits on a parent cycle) is promoted to a root.
func BuildTree(flat []Comment) []Comment {
	byID := make(map[string]bool, len(flat))
	for _, c := range flat {
		byID[c.ID] = true
	}
	children := make(map[string][]Comment)
	var roots []Comment
	for _, c := range flat {
		c.Replies = nil
		if c.ParentID == "" || c.ParentID == c.ID || !byID[c.ParentID] {
			roots = append(roots, c)
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	placed := make(map[string]bool, len(flat))
	var attach func(c Comment) Comment
	attach = func(c Comment) Comment {
		placed[c.ID] = true
		kids := children[c.ID]
		sort.SliceStable(kids, func(i, j int) bool { return kids[i].CreatedAt.Before(kids[j].CreatedAt) })
		c.Replies = make([]Comment, 0, len(kids))
		for _, k := range kids {
			if placed[k.ID] {
				continue
			}
			c.Replies = append(c.Replies, attach(k))
		}
		return c
	}

	sort.SliceStable(roots, func(i, j int) bool { return roots[i].CreatedAt.After(roots[j].CreatedAt) })
	tree := make([]Comment, 0, len(roots))
	for _, r := range roots {
		tree = append(tree, attach(r))
	}
	// Comments on a parent cycle are not reachable from any root.
	for _, c := range flat {
		if !placed[c.ID] {
			tree = append(tree, attach(c))
		}
	}
	return tree
}

// InsertReply returns a copy of tree with reply appended to the replies of
// parentID at any depth. The input tree is not modified. found is false
// when no comment has that id, in which case tree is returned unchanged.
func InsertReply(tree []Comment, parentID string, reply Comment) ([]Comment, bool) {
	for i, c := range tree {
		if c.ID == parentID {
			out := slices.Clone(tree)
			c.Replies = append(slices.Clone(c.Replies), reply)
			out[i] = c
			return out, true
		}
		if replies, ok := InsertReply(c.Replies, parentID, reply); ok {
			out := slices.Clone(tree)
			c.Replies = replies
			out[i] = c
			return out, true
		}
	}
	return tree, false
}

// FindComment searches the tree depth-first for id.
func FindComment(tree []Comment, id string) (Comment, bool) {
	for _, c := range tree {
		if c.ID == id {
			return c, true
		}
		if found, ok := FindComment(c.Replies, id); ok {
			return found, true
		}
	}
	return Comment{}, false
}

// CountComments returns the number of comments in the tree, replies included.
func CountComments(tree []Comment) int {
	n := len(tree)
	for _, c := range tree {
		n += CountComments(c.Replies)
	}
	return n
}

// Depth returns the number of levels in the tree; 0 for an empty tree.
func Depth(tree []Comment) int {
	deepest := 0
	for _, c := range tree {
		if d := Depth(c.Replies); d > deepest {
			deepest = d
		}
	}
	if len(tree) == 0 {
		return 0
	}
	return deepest + 1
}

// ToggleReaction adds userID's reaction of type t on commentID to raw, or
// removes it if already present. It reports whether the reaction is now set.
func ToggleReaction(raw []RawReaction, commentID, userID string, t ReactionType) ([]RawReaction, bool) {
	for i, r := range raw {
		if r.CommentID == commentID && r.UserID == userID && r.Type == t {
			return slices.Delete(slices.Clone(raw), i, i+1), false
		}
	}
	return append(slices.Clone(raw), RawReaction{CommentID: commentID, UserID: userID, Type: t}), true
}

// AggregateReactions summarises one comment's raw reactions for viewerID,
// one entry per reaction type in display order.
func AggregateReactions(raw []RawReaction, viewerID string) []Reaction {
	out := make([]Reaction, len(ReactionTypes))
	for i, t := range ReactionTypes {
		out[i].Type = t
	}
	for _, r := range raw {
		i := slices.Index(ReactionTypes, r.Type)
		if i < 0 {
			continue
		}
		out[i].Count++
		if viewerID != "" && r.UserID == viewerID {
			out[i].UserHasReacted = true
		}
	}
	return out
}

// attachReactions sets Reactions on every flat comment.
func attachReactions(flat []Comment, raw []RawReaction, viewerID string) {
	byComment := make(map[string][]RawReaction)
	for _, r := range raw {
		byComment[r.CommentID] = append(byComment[r.CommentID], r)
	}
	for i := range flat {
		flat[i].Reactions = AggregateReactions(byComment[flat[i].ID], viewerID)
	}
}
