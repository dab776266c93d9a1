package expr

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"cvp-knife/internal/cvp"
)

// monomial maps variable name to exponent
type monomial map[string]int

func (m monomial) key() string {
	if len(m) == 0 {
		return cvp.One
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		if m[name] == 1 {
			parts[i] = name
		} else {
			parts[i] = name + "^" + strconv.Itoa(m[name])
		}
	}
	return strings.Join(parts, "*")
}

func (m monomial) degree() int {
	d := 0
	for _, e := range m {
		d += e
	}
	return d
}

func (m monomial) times(o monomial) monomial {
	out := make(monomial, len(m)+len(o))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range o {
		out[k] += v
	}
	return out
}

// poly is a sparse polynomial that remembers first-seen monomial order
type poly struct {
	order  []string
	monos  map[string]monomial
	coeffs map[string]*big.Int
}

func newPoly() *poly {
	return &poly{monos: make(map[string]monomial), coeffs: make(map[string]*big.Int)}
}

func constPoly(v *big.Int) *poly {
	p := newPoly()
	p.addTerm(monomial{}, v)
	return p
}

func (p *poly) addTerm(m monomial, c *big.Int) {
	k := m.key()
	if cur, ok := p.coeffs[k]; ok {
		cur.Add(cur, c)
		return
	}
	p.order = append(p.order, k)
	p.monos[k] = m
	p.coeffs[k] = new(big.Int).Set(c)
}

func (p *poly) add(q *poly) *poly {
	out := newPoly()
	for _, k := range p.order {
		out.addTerm(p.monos[k], p.coeffs[k])
	}
	for _, k := range q.order {
		out.addTerm(q.monos[k], q.coeffs[k])
	}
	return out
}

func (p *poly) scale(c *big.Int) *poly {
	out := newPoly()
	for _, k := range p.order {
		out.addTerm(p.monos[k], new(big.Int).Mul(p.coeffs[k], c))
	}
	return out
}

func (p *poly) mul(q *poly) (*poly, error) {
	if n := len(p.order) * len(q.order); n > 16*MaxTerms {
		return nil, fmt.Errorf("%w: product of %d by %d terms", ErrTooLarge, len(p.order), len(q.order))
	}
	out := newPoly()
	tmp := new(big.Int)
	for _, a := range p.order {
		for _, b := range q.order {
			if p.coeffs[a].BitLen()+q.coeffs[b].BitLen() > MaxCoeffBits+1 {
				return nil, fmt.Errorf("%w: coefficient exceeds %d bits", ErrTooLarge, MaxCoeffBits)
			}
			out.addTerm(p.monos[a].times(q.monos[b]), tmp.Mul(p.coeffs[a], q.coeffs[b]))
		}
	}
	if len(out.order) > MaxTerms {
		return nil, fmt.Errorf("%w: %d terms", ErrTooLarge, len(out.order))
	}
	return out, nil
}

// constant returns the value of a polynomial without variables
func (p *poly) constant() (*big.Int, bool) {
	v := new(big.Int)
	for _, k := range p.order {
		if p.coeffs[k].Sign() == 0 {
			continue
		}
		if k != cvp.One {
			return nil, false
		}
		v.Set(p.coeffs[k])
	}
	return v, true
}

func (p *poly) terms() []cvp.Term {
	out := make([]cvp.Term, 0, len(p.order))
	for _, k := range p.order {
		if p.coeffs[k].Sign() == 0 {
			continue
		}
		out = append(out, cvp.Term{
			Coeff:    new(big.Int).Set(p.coeffs[k]),
			Monomial: k,
			Degree:   p.monos[k].degree(),
		})
	}
	return out
}

func (c Constant) expand() (*poly, error) {
	return constPoly(c.Value), nil
}

func (v Variable) expand() (*poly, error) {
	p := newPoly()
	p.addTerm(monomial{v.Name: 1}, big.NewInt(1))
	return p, nil
}

func (s Sum) expand() (*poly, error) {
	out := newPoly()
	for _, t := range s.Terms {
		q, err := t.expand()
		if err != nil {
			return nil, err
		}
		out = out.add(q)
	}
	return out, nil
}

func (p Product) expand() (*poly, error) {
	out := constPoly(big.NewInt(1))
	for _, f := range p.Factors {
		q, err := f.expand()
		if err != nil {
			return nil, err
		}
		if out, err = out.mul(q); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p Power) expand() (*poly, error) {
	if p.Exp < 0 || p.Exp > MaxConstExponent {
		return nil, ErrExponent
	}
	base, err := p.Base.expand()
	if err != nil {
		return nil, err
	}
	if v, ok := base.constant(); ok {
		if v.BitLen()*p.Exp > MaxCoeffBits {
			return nil, fmt.Errorf("%w: %d-bit base to the %d exceeds %d bits", ErrExponent, v.BitLen(), p.Exp, MaxCoeffBits)
		}
		return constPoly(new(big.Int).Exp(v, big.NewInt(int64(p.Exp)), nil)), nil
	}
	if p.Exp > MaxExponent {
		return nil, ErrExponent
	}
	out := constPoly(big.NewInt(1))
	for i := 0; i < p.Exp; i++ {
		if out, err = out.mul(base); err != nil {
			return nil, err
		}
	}
	return out, nil
}
