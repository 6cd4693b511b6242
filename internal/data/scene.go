package data

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hmcore/world/internal/component"
	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
)

var (
	ErrDuplicateKey  = errors.New("duplicate global key")
	ErrUnknownTarget = errors.New("unknown follow target")
)

// Vec is a vector written as a YAML sequence: [x, y, z].
type Vec [3]float32

func (v Vec) V() xmath.Vec3 { return xmath.V3(v[0], v[1], v[2]) }

// Rotation is an axis-angle rotation.
type Rotation struct {
	Axis    Vec     `yaml:"axis"`
	Degrees float32 `yaml:"degrees"`
}

func (r *Rotation) quat() xmath.Quat {
	if r == nil {
		return xmath.IdentityQuat()
	}
	const rad = 3.14159265358979323846 / 180
	return xmath.QuatFromAxisAngle(r.Axis.V().Normalized(), r.Degrees*rad)
}

// FollowSpec names the target by global key.
type FollowSpec struct {
	Target string  `yaml:"target"`
	Offset Vec     `yaml:"offset"`
	Speed  float32 `yaml:"speed"`
}

// ObjectSpec describes one object, its components and its children.
type ObjectSpec struct {
	Name         string    `yaml:"name"`
	Key          string    `yaml:"key"`
	Position     Vec       `yaml:"position"`
	Rotation     *Rotation `yaml:"rotation"`
	Scale        *Vec      `yaml:"scale"`
	UniformScale float32   `yaml:"uniform_scale"`
	Dynamic      bool      `yaml:"dynamic"`
	Inactive     bool      `yaml:"inactive"`
	Tags         []string  `yaml:"tags"`
	Team         uint16    `yaml:"team"`
	Seed         uint32    `yaml:"seed"` // 0 = derived from the parent

	Rotator  *component.Rotator  `yaml:"rotator"`
	Lifetime *component.Lifetime `yaml:"lifetime"`
	Follow   *FollowSpec         `yaml:"follow"`
	Script   *component.Script   `yaml:"script"`

	Children []ObjectSpec `yaml:"children"`
}

// Scene is a YAML scene description.
type Scene struct {
	Name    string       `yaml:"name"`
	Objects []ObjectSpec `yaml:"objects"`
}

// LoadScene loads a scene file.
func LoadScene(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	s, err := ParseScene(raw)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return s, nil
}

func ParseScene(raw []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if _, err := s.keys(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Count returns the number of objects in the scene.
func (s *Scene) Count() int {
	n := 0
	s.walk(func(*ObjectSpec) { n++ })
	return n
}

func (s *Scene) walk(fn func(*ObjectSpec)) {
	var visit func(specs []ObjectSpec)
	visit = func(specs []ObjectSpec) {
		for i := range specs {
			fn(&specs[i])
			visit(specs[i].Children)
		}
	}
	visit(s.Objects)
}

func (s *Scene) keys() (map[string]bool, error) {
	keys := make(map[string]bool)
	var err error
	s.walk(func(o *ObjectSpec) {
		if o.Key == "" || err != nil {
			return
		}
		if keys[o.Key] {
			err = fmt.Errorf("%w: %q", ErrDuplicateKey, o.Key)
			return
		}
		keys[o.Key] = true
	})
	return keys, err
}

// SpawnOptions control where a scene is spawned.
type SpawnOptions struct {
	Parent          ecs.ObjectHandle
	CreatedByPrefab bool
}

// SpawnResult summarizes what Spawn created.
type SpawnResult struct {
	Roots      []ecs.ObjectHandle
	Objects    int
	Components int
}

// Spawn creates the scene's objects and components in w. It takes the
// world's write marker. Follow targets must name a key of the scene or an
// existing global key of the world; nothing is created otherwise.
func Spawn(w *ecs.World, s *Scene, opts SpawnOptions) (SpawnResult, error) {
	w.Lock()
	defer w.Unlock()

	keys, err := s.keys()
	if err != nil {
		return SpawnResult{}, err
	}
	var missing error
	s.walk(func(o *ObjectSpec) {
		if o.Key != "" && missing == nil {
			if _, taken := w.TryGetObjectWithGlobalKey(o.Key); taken {
				missing = fmt.Errorf("%w: %q already exists in world %s", ErrDuplicateKey, o.Key, w.Name())
			}
		}
		if o.Follow == nil || missing != nil || keys[o.Follow.Target] {
			return
		}
		if _, ok := w.TryGetObjectWithGlobalKey(o.Follow.Target); !ok {
			missing = fmt.Errorf("%w: %q", ErrUnknownTarget, o.Follow.Target)
		}
	})
	if missing != nil {
		return SpawnResult{}, missing
	}

	sp := spawner{w: w, opts: opts}
	for i := range s.Objects {
		sp.res.Roots = append(sp.res.Roots, sp.spawn(&s.Objects[i], opts.Parent))
	}
	for _, pf := range sp.follows {
		target, _ := w.TryGetObjectWithGlobalKey(pf.spec.Target)
		_, f := component.Follows(w).Create(pf.owner)
		f.Target, f.Offset, f.Speed = target, pf.spec.Offset.V(), pf.spec.Speed
		sp.created(f)
	}
	return sp.res, nil
}

type pendingFollow struct {
	owner ecs.ObjectHandle
	spec  *FollowSpec
}

type spawner struct {
	w       *ecs.World
	opts    SpawnOptions
	res     SpawnResult
	follows []pendingFollow
}

func (sp *spawner) created(c ecs.Component) {
	if sp.opts.CreatedByPrefab {
		c.Base().SetCreatedByPrefab(true)
	}
	sp.res.Components++
}

func (sp *spawner) spawn(o *ObjectSpec, parent ecs.ObjectHandle) ecs.ObjectHandle {
	w := sp.w
	desc := ecs.ObjectDesc{
		Name:              o.Name,
		GlobalKey:         o.Key,
		Parent:            parent,
		LocalPosition:     o.Position.V(),
		LocalRotation:     o.Rotation.quat(),
		LocalUniformScale: o.UniformScale,
		Dynamic:           o.Dynamic,
		Inactive:          o.Inactive,
		CreatedByPrefab:   sp.opts.CreatedByPrefab,
		Tags:              ecs.NewTagSet(o.Tags...),
		TeamID:            o.Team,
		StableRandomSeed:  o.Seed,
	}
	if desc.StableRandomSeed == ecs.SeedRandom {
		desc.StableRandomSeed = ecs.SeedFromParent
	}
	if o.Scale != nil {
		desc.LocalScaling = o.Scale.V()
	}
	h := w.CreateObject(desc)
	sp.res.Objects++

	if o.Rotator != nil {
		_, r := component.Rotators(w).Create(h)
		r.Axis, r.Speed = o.Rotator.Axis, o.Rotator.Speed
		sp.created(r)
	}
	if o.Lifetime != nil {
		_, l := component.Lifetimes(w).Create(h)
		l.Remaining, l.DeleteEmptyParents = o.Lifetime.Remaining, o.Lifetime.DeleteEmptyParents
		sp.created(l)
	}
	if o.Script != nil {
		_, s := component.Scripts(w).Create(h)
		s.Function = o.Script.Function
		sp.created(s)
	}
	if o.Follow != nil {
		sp.follows = append(sp.follows, pendingFollow{owner: h, spec: o.Follow})
	}
	for i := range o.Children {
		sp.spawn(&o.Children[i], h)
	}
	return h
}
