// Copyright © 2018 One Concern

// Package model describes the base objects manipulated by the crawler.
//
// The object model for the crawler is composed of:
//
//  Releases:
//    A release is a dated, externally published archive holding the current content
//    of many models. Releases are ordered by date, then by name.
//
//  Models:
//    A model is a tracked scientific artifact with a stable identifier across its history.
//
//  Versions:
//    A version is an immutable snapshot of a model (a ModelRecord), linked to at most one
//    parent version. Versions of one model form a tree, rooted at the first version recorded.
//
//  Metadata:
//    Versions carry a free-form string mapping. The crawler records where the version
//    comes from (release, date, relative path) and a digest of its content.
package model
